package file

import (
	times "gopkg.in/djherbis/times.v1"
)

// StatTimes reports the host filesystem's access/modify/change/birth
// times for pathName, when the platform exposes them. It is purely
// diagnostic, for callers that want to answer "why does this image
// look stale" without reaching for stat(1) separately. Birth time is
// reported only when times.HasBirthTime() is true for the underlying
// platform.
func StatTimes(pathName string) (t times.Timespec, hasBirthTime bool, err error) {
	t, err = times.Stat(pathName)
	if err != nil {
		return times.Timespec{}, false, err
	}
	return t, t.HasBirthTime(), nil
}
