package submission

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// ErrNoEmail means no email-like value was found. Callers reject the
// submission before contacting the provider.
var ErrNoEmail = errors.New("no email found in submission")

const (
	DefaultNestedKey    = "rawRequest"
	DefaultUserIDPrefix = "applicant_"
)

// DefaultIgnoredKeys are Jotform envelope fields that describe the form or
// its owner rather than the applicant.
var DefaultIgnoredKeys = []string{
	"formID",
	"submissionID",
	"webhookURL",
	"ip",
	"formTitle",
	"pretty",
	"username",
	"type",
	"slug",
	"event_id",
	"path",
	"customParams",
	"product",
	"customTitle",
	"submissionEdited",
	"unread",
	"parent",
	"appID",
	"fromTable",
	"documentID",
	"teamID",
	"isSilent",
	"customBody",
	"buildDate",
	"timeToSubmit",
	"jsExecutionTracker",
	"submitSource",
	"validatedNewRequiredFieldIDs",
	"uploadServerUrl",
}

// Applicant is the normalised applicant record. Phone is empty when absent.
type Applicant struct {
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
}

// Normalizer derives an Applicant from a schema-less submission. It is
// read-only after construction and safe for concurrent use.
type Normalizer struct {
	nestedKey    string
	userIDPrefix string
	ignored      map[string]struct{}
	now          func() time.Time
}

// NewNormalizer builds a normalizer. Empty arguments select the defaults.
func NewNormalizer(nestedKey, userIDPrefix string, ignoredKeys []string) *Normalizer {
	if nestedKey == "" {
		nestedKey = DefaultNestedKey
	}
	if userIDPrefix == "" {
		userIDPrefix = DefaultUserIDPrefix
	}
	if ignoredKeys == nil {
		ignoredKeys = DefaultIgnoredKeys
	}

	ignored := make(map[string]struct{}, len(ignoredKeys)+1)
	for _, k := range ignoredKeys {
		ignored[foldKey(k)] = struct{}{}
	}
	ignored[foldKey(nestedKey)] = struct{}{}

	return &Normalizer{
		nestedKey:    nestedKey,
		userIDPrefix: userIDPrefix,
		ignored:      ignored,
		now:          time.Now,
	}
}

// WithClock returns a copy of the normalizer that synthesises user ids from now.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	cp := *n
	cp.now = now
	return &cp
}

// Unwrap replaces the submission with the JSON object carried in the nested
// field, when there is one. The nested fields come first, followed by the
// remaining outer fields. A nested value that does not parse is logged and
// dropped; the outer fields are used as they are.
func (n *Normalizer) Unwrap(sub Submission) Submission {
	idx := sub.index(n.nestedKey)
	if idx < 0 && len(sub) == 1 && (sub[0].Object != nil || strings.HasPrefix(strings.TrimSpace(sub[0].Value), "{")) {
		idx = 0
	}
	if idx < 0 {
		return sub
	}

	outer := make(Submission, 0, len(sub)-1)
	outer = append(outer, sub[:idx]...)
	outer = append(outer, sub[idx+1:]...)

	if object := sub[idx].Object; object != nil {
		slog.Debug("unwrapped nested submission object", "key", sub[idx].Key, "fields", len(object))
		return append(append(Submission{}, object...), outer...)
	}

	nested, err := FromJSON([]byte(sub[idx].Value))
	if err != nil {
		slog.Warn("failed to parse nested submission payload, using outer fields", "key", sub[idx].Key, "error", err)
		return outer
	}

	slog.Debug("unwrapped nested submission payload", "key", sub[idx].Key, "fields", len(nested))
	return append(nested, outer...)
}

// Normalize extracts email, phone and user id. The returned error is
// ErrNoEmail when the submission carries nothing email-like; the partially
// filled Applicant is still returned for diagnostics.
func (n *Normalizer) Normalize(sub Submission) (Applicant, error) {
	fields := n.candidates(n.Unwrap(sub))
	claimed := make([]bool, len(fields))

	var applicant Applicant

	if i := pickEmail(fields); i >= 0 {
		applicant.Email = fields[i].Value
		claimed[i] = true
	}

	if i := pick(fields, claimed, isPhoneKey, looksLikePhone); i >= 0 {
		applicant.Phone = fields[i].Value
		claimed[i] = true
	}

	if i := pick(fields, claimed, isNameKey, looksLikeName); i >= 0 {
		applicant.Name = fields[i].Value
		applicant.UserID = SanitizeUserID(fields[i].Value)
		claimed[i] = true
	}

	if applicant.UserID == "" {
		applicant.UserID = n.userIDPrefix + strconv.FormatInt(n.now().UnixMilli(), 10)
	}

	if applicant.Email == "" {
		return applicant, ErrNoEmail
	}
	return applicant, nil
}

// candidates drops blank values and envelope keys, and trims what is left.
func (n *Normalizer) candidates(sub Submission) Submission {
	out := make(Submission, 0, len(sub))
	for _, f := range sub {
		if isBlank(f.Value) {
			continue
		}
		if _, skip := n.ignored[foldKey(f.Key)]; skip {
			continue
		}
		out = append(out, Field{Key: f.Key, Value: strings.TrimSpace(f.Value)})
	}
	return out
}

// pickEmail prefers an email-named field holding an "@", then any value with
// an "@", then any email-named field.
func pickEmail(fields Submission) int {
	tiers := []func(Field) bool{
		func(f Field) bool { return isEmailKey(f.Key) && looksLikeEmail(f.Value) },
		func(f Field) bool { return looksLikeEmail(f.Value) },
		func(f Field) bool { return isEmailKey(f.Key) },
	}
	for _, match := range tiers {
		for i, f := range fields {
			if match(f) {
				return i
			}
		}
	}
	return -1
}

// pick returns the first unclaimed field whose key matches, falling back to
// the first unclaimed field whose value matches.
func pick(fields Submission, claimed []bool, keyMatch, valueMatch func(string) bool) int {
	for i, f := range fields {
		if !claimed[i] && keyMatch(f.Key) {
			return i
		}
	}
	for i, f := range fields {
		if !claimed[i] && valueMatch(f.Value) {
			return i
		}
	}
	return -1
}
