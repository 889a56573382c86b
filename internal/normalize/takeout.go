package normalize

// takeoutFormat reads Google Takeout's BrowserHistory.json, whose items
// carry microsecond Unix timestamps in "time_usec".
type takeoutFormat struct{}

func (takeoutFormat) kind() Kind { return KindTakeout }

func (takeoutFormat) entries(doc any) ([]rawEntry, error) {
	list, err := listUnder(doc, "Browser History", "BrowserHistory")
	if err != nil {
		return nil, err
	}
	return toEntries(list, func(obj map[string]any) rawEntry {
		return rawEntry{
			URL:   stringField(obj, "url"),
			Title: stringField(obj, "title"),
			Time:  firstPresent(obj, "time_usec", "time"),
		}
	}), nil
}
