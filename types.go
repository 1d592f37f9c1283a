package transcache

import "time"

// Translation is one stored entry. ID, CreatedAt and UpdatedAt are assigned
// by the store.
type Translation struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Locale    string    `json:"locale"`
	Value     string    `json:"value"`
	Tag       *string   `json:"tag"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Filters narrows List. Empty fields are not applied; the rest are ANDed.
// Locale and Tag match exactly, Key and Value match as substrings.
type Filters struct {
	Locale string
	Tag    string
	Key    string
	Value  string
}

func (f Filters) fields() map[string]string {
	return map[string]string{
		"locale": f.Locale,
		"tag":    f.Tag,
		"key":    f.Key,
		"value":  f.Value,
	}
}

// ListResult is what List returns and caches. Count is the number of rows in
// Data, not the number of matching rows in the store.
type ListResult struct {
	Count int           `json:"count"`
	Data  []Translation `json:"data"`
}

// Export maps locale -> key -> value.
type Export map[string]map[string]string

type NewTranslation struct {
	Key    string  `json:"key"`
	Locale string  `json:"locale"`
	Value  string  `json:"value"`
	Tag    *string `json:"tag,omitempty"`
}

// Patch is a partial update. Only non-nil fields change; ClearTag sets the
// tag to NULL and wins over Tag.
type Patch struct {
	Key      *string
	Locale   *string
	Value    *string
	Tag      *string
	ClearTag bool
}

// Empty reports whether applying p would change nothing.
func (p Patch) Empty() bool {
	return p.Key == nil && p.Locale == nil && p.Value == nil && p.Tag == nil && !p.ClearTag
}

func (p Patch) apply(t *Translation) {
	if p.Key != nil {
		t.Key = *p.Key
	}
	if p.Locale != nil {
		t.Locale = *p.Locale
	}
	if p.Value != nil {
		t.Value = *p.Value
	}
	switch {
	case p.ClearTag:
		t.Tag = nil
	case p.Tag != nil:
		tag := *p.Tag
		t.Tag = &tag
	}
}

// Stats summarizes the store. TableSize and DatabaseSize are human readable
// and empty when the backend cannot compute them.
type Stats struct {
	Total        int64            `json:"total"`
	UniqueKeys   int64            `json:"unique_keys"`
	PerLocale    map[string]int64 `json:"per_locale"`
	PerTag       map[string]int64 `json:"per_tag"`
	TableSize    string           `json:"table_size,omitempty"`
	DatabaseSize string           `json:"database_size,omitempty"`
}
