package db

type Run struct {
	ID        string
	CreatedAt int64
	Transport string
	Total     int64
	Input     string
}

type Result struct {
	RunID      string
	Position   int64
	Identifier string
	SheetRow   int64
	LookedUpAt int64
	Status     string
	Error      string
	Note       string
	Attempts   int64
	Fields     string
}
