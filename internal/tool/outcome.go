package tool

import (
	"reflect"

	"calendarbot/internal/domain"
)

// Kind discriminates handler outcomes.
type Kind int

const (
	KindUnknown Kind = iota
	KindOk
	KindNeutral
	KindConflict
	KindErr
)

// Outcome is what every handler returns. Payload is the tool-specific
// result; Message is a short human-readable note.
type Outcome struct {
	Kind    Kind
	Payload any
	Message string
	Err     error
}

func Ok(payload any) Outcome {
	return Outcome{Kind: KindOk, Payload: payload}
}

// Neutral is a successful call that found or changed nothing.
func Neutral(message string) Outcome {
	return Outcome{Kind: KindNeutral, Message: message}
}

func Conflict(payload any, message string) Outcome {
	return Outcome{Kind: KindConflict, Payload: payload, Message: message}
}

func Fail(err error) Outcome {
	return Outcome{Kind: KindErr, Err: err}
}

// Status classifies the outcome. Err wins over everything, then Conflict,
// then Neutral or an empty Ok payload, then Ok.
func (o Outcome) Status() domain.StatusTag {
	switch {
	case o.Kind == KindErr || o.Err != nil:
		return domain.StatusFailed
	case o.Kind == KindConflict:
		return domain.StatusConflict
	case o.Kind == KindNeutral:
		return domain.StatusNeutral
	case o.Kind == KindOk && isEmpty(o.Payload):
		return domain.StatusNeutral
	case o.Kind == KindOk:
		return domain.StatusSuccess
	}
	return domain.StatusUnknown
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
