package normalize

// edgeFormat reads the Edge history export. Timestamps come either as one
// field or split into locale-formatted "date" and "time".
type edgeFormat struct{}

func (edgeFormat) kind() Kind { return KindEdge }

func (edgeFormat) entries(doc any) ([]rawEntry, error) {
	list, err := listUnder(doc, "records", "history", "items")
	if err != nil {
		return nil, err
	}
	return toEntries(list, func(obj map[string]any) rawEntry {
		ts := firstPresent(obj, "datetime", "timestamp")
		if ts == nil {
			date, clock := stringField(obj, "date"), stringField(obj, "time")
			if date != "" && clock != "" {
				ts = date + " " + clock
			}
		}
		return rawEntry{
			URL:   stringField(obj, "url"),
			Title: stringField(obj, "title"),
			Time:  ts,
		}
	}), nil
}
