package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/unkn0wn-root/transcache"
)

// validationError is the 422 body: a summary message plus per-field lists.
type validationError struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

type rule struct {
	name     string
	required bool
	nullable bool
	max      int // runes; 0 => unbounded
}

var (
	createRules = []rule{
		{name: "key", required: true, max: 255},
		{name: "locale", required: true, max: 5},
		{name: "value", required: true},
		{name: "tag", nullable: true, max: 50},
	}
	updateRules = []rule{
		{name: "key", max: 255},
		{name: "locale", max: 5},
		{name: "value"},
		{name: "tag", nullable: true, max: 50},
	}
)

// field is one checked input: absent, explicit null, or a string.
type field struct {
	present bool
	null    bool
	val     string
}

func check(body map[string]json.RawMessage, rules []rule) (map[string]field, *validationError) {
	out := make(map[string]field, len(rules))
	errs := map[string][]string{}
	for _, ru := range rules {
		raw, ok := body[ru.name]
		f := field{present: ok}
		if ok && bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			f.null = true
		} else if ok {
			if err := json.Unmarshal(raw, &f.val); err != nil {
				errs[ru.name] = append(errs[ru.name], fmt.Sprintf("The %s field must be a string.", ru.name))
				continue
			}
			// an empty string counts as null
			f.null = f.val == ""
		}

		switch {
		case ru.required && (!f.present || f.null || f.val == ""):
			errs[ru.name] = append(errs[ru.name], fmt.Sprintf("The %s field is required.", ru.name))
		case f.null && !ru.nullable:
			errs[ru.name] = append(errs[ru.name], fmt.Sprintf("The %s field must be a string.", ru.name))
		case ru.max > 0 && utf8.RuneCountInString(f.val) > ru.max:
			errs[ru.name] = append(errs[ru.name], fmt.Sprintf("The %s field must not be greater than %d characters.", ru.name, ru.max))
		}
		out[ru.name] = f
	}
	if len(errs) == 0 {
		return out, nil
	}
	return nil, newValidationError(errs)
}

func newValidationError(errs map[string][]string) *validationError {
	names := make([]string, 0, len(errs))
	for n := range errs {
		names = append(names, n)
	}
	sort.Strings(names)
	msg := errs[names[0]][0]
	if extra := len(names) - 1; extra == 1 {
		msg += " (and 1 more error)"
	} else if extra > 1 {
		msg += fmt.Sprintf(" (and %d more errors)", extra)
	}
	return &validationError{Message: msg, Errors: errs}
}

func parseCreate(body map[string]json.RawMessage) (transcache.NewTranslation, *validationError) {
	fs, verr := check(body, createRules)
	if verr != nil {
		return transcache.NewTranslation{}, verr
	}
	in := transcache.NewTranslation{
		Key:    fs["key"].val,
		Locale: fs["locale"].val,
		Value:  fs["value"].val,
	}
	if tag := fs["tag"]; tag.present && !tag.null {
		v := tag.val
		in.Tag = &v
	}
	return in, nil
}

func parseUpdate(body map[string]json.RawMessage) (transcache.Patch, *validationError) {
	fs, verr := check(body, updateRules)
	if verr != nil {
		return transcache.Patch{}, verr
	}
	var p transcache.Patch
	str := func(name string) *string {
		f := fs[name]
		if !f.present {
			return nil
		}
		v := f.val
		return &v
	}
	p.Key = str("key")
	p.Locale = str("locale")
	p.Value = str("value")
	if tag := fs["tag"]; tag.null {
		p.ClearTag = true
	} else {
		p.Tag = str("tag")
	}
	return p, nil
}
