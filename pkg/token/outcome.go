package token

import "reflect"

// Status is the kind of a terminal authentication outcome.
type Status int

const (
	// Authenticated means the verifier accepted the credentials.
	Authenticated Status = iota

	// Rejected means the credentials were missing or the verifier declined them.
	Rejected

	// Errored means the verifier reported an unexpected failure.
	Errored
)

func (s Status) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Rejected:
		return "rejected"
	case Errored:
		return "errored"
	}
	return "unknown"
}

// Outcome is the result of one Authenticate call.
type Outcome struct {
	Status Status
	User   any   // set only when Status == Authenticated
	Info   any   // optional auxiliary data for Authenticated and Rejected
	Err    error // set only when Status == Errored
}

// MissingCredentials reports whether the outcome is a rejection caused by
// an absent username or token.
func (o Outcome) MissingCredentials() bool {
	if o.Status != Rejected {
		return false
	}
	_, ok := o.Info.(*BadRequestError)
	return ok
}

// Hooks receives the three completion signals of the strategy. A host
// pipeline binds them to its own success, failure, and error handling.
type Hooks interface {
	Success(user, info any)
	Fail(info any)
	Error(err error)
}

// HooksFuncs adapts three functions to Hooks. Nil functions are skipped.
type HooksFuncs struct {
	OnSuccess func(user, info any)
	OnFail    func(info any)
	OnError   func(err error)
}

func (h HooksFuncs) Success(user, info any) {
	if h.OnSuccess != nil {
		h.OnSuccess(user, info)
	}
}

func (h HooksFuncs) Fail(info any) {
	if h.OnFail != nil {
		h.OnFail(info)
	}
}

func (h HooksFuncs) Error(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

// Dispatch calls exactly one hook matching the outcome.
func (o Outcome) Dispatch(h Hooks) {
	switch o.Status {
	case Authenticated:
		h.Success(o.User, o.Info)
	case Rejected:
		h.Fail(o.Info)
	default:
		h.Error(o.Err)
	}
}

// resolve maps a verifier completion onto an Outcome.
func resolve(err error, user, info any) Outcome {
	if err != nil {
		return Outcome{Status: Errored, Err: err}
	}
	if !present(user) {
		return Outcome{Status: Rejected, Info: info}
	}
	return Outcome{Status: Authenticated, User: user, Info: info}
}

// present reports whether a verifier's user value denotes an identity.
// nil, nil pointers/maps/slices, false, zero numbers, and "" do not.
func present(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return !rv.IsZero()
	}
	return true
}
