package kt

import (
	"strconv"
	"time"

	"github.com/pior/kt/binproto"
)

// Expiration is a record expiration time. The zero value means the record
// never expires.
//
// On the wire a single signed number carries both forms: a positive value
// is a TTL in seconds, a negative value is an absolute Unix time negated.
type Expiration struct {
	value int64
	set   bool
}

// NoExpiration keeps records forever.
var NoExpiration Expiration

// After returns an expiration ttl seconds from now.
func After(ttl int64) (Expiration, error) {
	if ttl < 0 {
		return NoExpiration, invalidArgument("expiration cannot be negative: " + strconv.FormatInt(ttl, 10))
	}
	return Expiration{value: ttl, set: true}, nil
}

// At returns an expiration at the Unix time epoch, in seconds.
func At(epoch int64) (Expiration, error) {
	if epoch < 0 {
		return NoExpiration, invalidArgument("expiration cannot be negative: " + strconv.FormatInt(epoch, 10))
	}
	return Expiration{value: -epoch, set: true}, nil
}

// AfterDuration is After with a duration, truncated to whole seconds.
func AfterDuration(d time.Duration) (Expiration, error) {
	return After(int64(d / time.Second))
}

// AtTime is At with a time.
func AtTime(t time.Time) (Expiration, error) {
	return At(t.Unix())
}

// IsSet returns false for NoExpiration.
func (e Expiration) IsSet() bool {
	return e.set
}

// Value returns the signed wire value: +ttl or -epoch. Zero for NoExpiration.
func (e Expiration) Value() int64 {
	return e.value
}

// binary returns the value sent in set_bulk records.
func (e Expiration) binary() int64 {
	if !e.set {
		return binproto.NoExpiration
	}
	return e.value
}

func (e Expiration) String() string {
	if !e.set {
		return "none"
	}
	return strconv.FormatInt(e.value, 10)
}
