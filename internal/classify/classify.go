package classify

import (
	"summons-lookup/internal/extract"
	"summons-lookup/internal/record"
)

type Options struct {
	// a result needs more than this many fields to count as SUCCESS
	SuccessThreshold int
	// when set, SUCCESS depends only on this field being present,
	// and its absence makes the result UNKNOWN
	RequiredField string
}

type Classifier struct {
	opts Options
}

func New(opts Options) Classifier {
	if opts.SuccessThreshold < 0 {
		opts.SuccessThreshold = 0
	}
	opts.RequiredField = record.NormalizeKey(opts.RequiredField)
	return Classifier{opts: opts}
}

// Classify maps an extraction and the error that ended the lookup, if any,
// onto exactly one status.
func (c Classifier) Classify(ex extract.Extraction, err error) record.Status {
	if err != nil {
		return record.STATUS_ERROR
	}
	if ex.NotFound {
		return record.STATUS_NOT_FOUND
	}
	if c.opts.RequiredField != "" {
		if ex.Fields.Has(c.opts.RequiredField) {
			return record.STATUS_SUCCESS
		}
		return record.STATUS_UNKNOWN
	}
	if ex.Fields.Len() > c.opts.SuccessThreshold {
		return record.STATUS_SUCCESS
	}
	return record.STATUS_NO_DATA
}
