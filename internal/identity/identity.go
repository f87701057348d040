// Package identity turns inbound request payloads into a caller identity.
//
// The resolver only parses; it never invents a fallback identity. Whether an
// unverified or unparseable caller may proceed is decided by the API layer.
package identity

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	tu "github.com/mymmrac/telego/telegoutil"
)

type Status int

const (
	Unparseable Status = iota
	Unverified
	Verified
)

func (s Status) String() string {
	switch s {
	case Verified:
		return "verified"
	case Unverified:
		return "unverified"
	default:
		return "unparseable"
	}
}

const ReferralPrefix = "ref_"

// Payload is the identity part of every API request body. Front ends send the
// Telegram WebApp initData string; local tooling may send user_id directly.
type Payload struct {
	InitData   string `json:"initData,omitempty"`
	UserID     int64  `json:"user_id,omitempty"`
	Username   string `json:"username,omitempty"`
	Ref        string `json:"ref,omitempty"`
	StartParam string `json:"start_param,omitempty"`
}

type Result struct {
	Status       Status
	Identity     int64
	Username     string
	LanguageCode string
	ReferralCode string
}

type webAppUser struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LanguageCode string `json:"language_code"`
}

type Resolver struct {
	botToken string
}

// NewResolver returns a resolver that validates initData signatures against
// botToken. With an empty token every parsed caller is Unverified.
func NewResolver(botToken string) *Resolver {
	return &Resolver{botToken: botToken}
}

func (r *Resolver) Resolve(p Payload) Result {
	if p.InitData != "" {
		return r.resolveInitData(p.InitData)
	}

	if p.UserID > 0 {
		ref := p.Ref
		if ref == "" {
			ref = p.StartParam
		}
		return Result{
			Status:       Unverified,
			Identity:     p.UserID,
			Username:     p.Username,
			ReferralCode: StripReferralPrefix(ref),
		}
	}

	return Result{Status: Unparseable}
}

func (r *Resolver) resolveInitData(initData string) Result {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return Result{Status: Unparseable}
	}

	var u webAppUser
	if err := json.Unmarshal([]byte(values.Get("user")), &u); err != nil || u.ID <= 0 {
		return Result{Status: Unparseable}
	}

	username := u.Username
	if username == "" {
		username = u.FirstName
	}

	res := Result{
		Status:       Unverified,
		Identity:     u.ID,
		Username:     username,
		LanguageCode: u.LanguageCode,
		ReferralCode: StripReferralPrefix(values.Get("start_param")),
	}

	if r.botToken != "" {
		if _, err := tu.ValidateWebAppData(r.botToken, initData); err == nil {
			res.Status = Verified
		}
	}

	return res
}

func StripReferralPrefix(code string) string {
	return strings.TrimPrefix(strings.TrimSpace(code), ReferralPrefix)
}

// ParseReferrer returns the referrer identity encoded in code, or false when
// the code is empty, not numeric, or points at self.
func ParseReferrer(code string, self int64) (int64, bool) {
	code = StripReferralPrefix(code)
	if code == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(code, 10, 64)
	if err != nil || id <= 0 || id == self {
		return 0, false
	}
	return id, true
}

// ReferralCode is the start parameter that credits identity as referrer.
func ReferralCode(identity int64) string {
	return ReferralPrefix + strconv.FormatInt(identity, 10)
}
