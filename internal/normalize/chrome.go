package normalize

// chromeFormat reads JSON produced by Chrome history export extensions: an
// array of history items, or an object wrapping one.
type chromeFormat struct{}

func (chromeFormat) kind() Kind { return KindChrome }

func (chromeFormat) entries(doc any) ([]rawEntry, error) {
	list, err := listUnder(doc, "history", "browserHistory", "items")
	if err != nil {
		return nil, err
	}
	return toEntries(list, func(obj map[string]any) rawEntry {
		return rawEntry{
			URL:   stringField(obj, "url"),
			Title: stringField(obj, "title"),
			Time:  firstPresent(obj, "visitTime", "lastVisitTime", "visit_time", "time", "timestamp"),
		}
	}), nil
}
