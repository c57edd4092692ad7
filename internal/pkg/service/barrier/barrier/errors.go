package barrier

import (
	"fmt"
	"time"
)

// InvalidConfigError means that Enter was called with a configuration which doesn't pass validation.
type InvalidConfigError struct {
	err error
}

// RegistrationError means that the barrier path or the participant node could not be created.
type RegistrationError struct {
	Path string
	err  error
}

// MembershipShrinkError means that a participant disappeared before the barrier passed.
type MembershipShrinkError struct {
	Path     string
	Previous int
	Current  int
}

// StallTimeoutError means that no new participant has been registered within the idle timeout.
type StallTimeoutError struct {
	Path    string
	Timeout time.Duration
	Ready   int
	Total   int
}

// WatchError means that the listing of participants or its change notification failed.
type WatchError struct {
	Path string
	err  error
}

// MetadataFetchError is not fatal, the participant is excluded from the aggregation.
type MetadataFetchError struct {
	Name string
	err  error
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf(`invalid barrier configuration: %s`, e.err)
}

func (e *InvalidConfigError) ErrorName() string {
	return "invalidConfig"
}

func (e *InvalidConfigError) Unwrap() error {
	return e.err
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf(`cannot register participant in barrier "%s": %s`, e.Path, e.err)
}

func (e *RegistrationError) ErrorName() string {
	return "registration"
}

func (e *RegistrationError) Unwrap() error {
	return e.err
}

func (e *MembershipShrinkError) Error() string {
	return fmt.Sprintf(
		`participants count of barrier "%s" decreased (%d -> %d), a participant probably exited unexpectedly`,
		e.Path, e.Previous, e.Current,
	)
}

func (e *MembershipShrinkError) ErrorName() string {
	return "membershipShrink"
}

func (e *StallTimeoutError) Error() string {
	return fmt.Sprintf(
		`no new participant of barrier "%s" registered within %s, ready: %d / %d`,
		e.Path, e.Timeout, e.Ready, e.Total,
	)
}

func (e *StallTimeoutError) ErrorName() string {
	return "stallTimeout"
}

func (e *WatchError) Error() string {
	return fmt.Sprintf(`cannot watch participants of barrier "%s": %s`, e.Path, e.err)
}

func (e *WatchError) ErrorName() string {
	return "watch"
}

func (e *WatchError) Unwrap() error {
	return e.err
}

func (e *MetadataFetchError) Error() string {
	return fmt.Sprintf(`cannot fetch metadata of participant "%s": %s`, e.Name, e.err)
}

func (e *MetadataFetchError) ErrorName() string {
	return "metadataFetch"
}

func (e *MetadataFetchError) Unwrap() error {
	return e.err
}
