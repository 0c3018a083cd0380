package tracking

import (
	"time"

	"docwatch/docsource"
	"docwatch/ledger"
)

// Detection is the result of comparing fresh platform metadata against the
// previously recorded state of a tracked document.
type Detection struct {
	HasChanged   bool
	Debounced    bool
	ChangeType   ledger.ChangeType
	Reason       string
	PreviousUser *string
	PreviousTime *int64
	CurrentUser  string
	CurrentTime  int64
}

// DetectChange classifies a document transition. It is a pure function:
// the caller persists whatever state change the detection implies.
//
// A document with no recorded observation (prior is nil, or the row has
// never seen a modification time) is always a new_document and is never
// debounced; the first observation must surface. Otherwise a change
// exists when either the modification time or the modifying user moved,
// and it is debounced when it lands inside the debounce window measured
// from the last notification.
func DetectChange(meta docsource.Metadata, prior *ledger.TrackedDocument, now time.Time, debounceWindow time.Duration) Detection {
	if prior == nil || prior.LastKnownTime == 0 {
		return Detection{
			HasChanged:  true,
			Debounced:   false,
			ChangeType:  ledger.ChangeNewDocument,
			Reason:      "first observation of document",
			CurrentUser: meta.LastModifiedUser,
			CurrentTime: meta.LastModifiedTime,
		}
	}

	prevUser := prior.LastKnownUser
	prevTime := prior.LastKnownTime

	if meta.LastModifiedTime == prevTime && meta.LastModifiedUser == prevUser {
		return Detection{
			HasChanged:   false,
			Reason:       "no modification since last observation",
			PreviousUser: &prevUser,
			PreviousTime: &prevTime,
			CurrentUser:  meta.LastModifiedUser,
			CurrentTime:  meta.LastModifiedTime,
		}
	}

	changeType := ledger.ChangeTimeUpdated
	reason := "modification time advanced"
	if meta.LastModifiedUser != prevUser {
		changeType = ledger.ChangeUserChanged
		reason = "modified by a different user"
	}

	debounced := now.Sub(prior.LastNotificationTime) < debounceWindow

	return Detection{
		HasChanged:   true,
		Debounced:    debounced,
		ChangeType:   changeType,
		Reason:       reason,
		PreviousUser: &prevUser,
		PreviousTime: &prevTime,
		CurrentUser:  meta.LastModifiedUser,
		CurrentTime:  meta.LastModifiedTime,
	}
}
