package browser

import (
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// driver is the slice of a browser tab the transport needs.
type driver interface {
	Navigate(url string) error
	Count(selector string) (int, error)
	// Fill clears the first element matching selector and types value into it.
	Fill(selector, value string) error
	Click(selector string) error
	WaitForLoad() error
	Content() (string, error)
	URL() string
	Close() error
}

type playwrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
}

// Install downloads the chromium build playwright drives.
func Install() error {
	return playwright.Install(&playwright.RunOptions{
		Browsers: []string{"chromium"},
	})
}

func launch(opts Options) (*playwrightDriver, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.ExecutablePath != "" {
		launchOpts.ExecutablePath = playwright.String(opts.ExecutablePath)
	}
	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	page, err := browser.NewPage()
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("open page: %w", err)
	}
	page.SetDefaultTimeout(float64(opts.Timeout / time.Millisecond))

	return &playwrightDriver{pw: pw, browser: browser, page: page}, nil
}

func (d *playwrightDriver) Navigate(url string) error {
	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	})
	return err
}

func (d *playwrightDriver) Count(selector string) (int, error) {
	return d.page.Locator(selector).Count()
}

func (d *playwrightDriver) Fill(selector, value string) error {
	return d.page.Locator(selector).First().Fill(value)
}

func (d *playwrightDriver) Click(selector string) error {
	return d.page.Locator(selector).First().Click()
}

func (d *playwrightDriver) WaitForLoad() error {
	return d.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateNetworkidle,
	})
}

func (d *playwrightDriver) Content() (string, error) {
	return d.page.Content()
}

func (d *playwrightDriver) URL() string {
	return d.page.URL()
}

func (d *playwrightDriver) Close() error {
	errlist := []error{}
	if err := d.page.Close(); err != nil {
		errlist = append(errlist, fmt.Errorf("close page: %w", err))
	}
	if err := d.browser.Close(); err != nil {
		errlist = append(errlist, fmt.Errorf("close browser: %w", err))
	}
	if err := d.pw.Stop(); err != nil {
		errlist = append(errlist, fmt.Errorf("stop playwright: %w", err))
	}
	return errors.Join(errlist...)
}
