package dto

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := GatewayConfigRequest{
		Type: "  rbs  ",
		Bank: " sberbank ",
		Name: " Sberbank acquiring ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "rbs", req.Type)
	assert.Equal(t, "sberbank", req.Bank)
	assert.Equal(t, "Sberbank acquiring", req.Name)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	req := GatewayConfigRequest{
		Type: "psb",
		Name: "shop <script>alert('x')</script> gateway",
	}
	SanitizeStruct(&req)

	assert.Contains(t, req.Name, "&lt;script&gt;")
	assert.NotContains(t, req.Name, "<script>")
}

func TestSanitizeStruct_HandlesNestedStringPointer(t *testing.T) {
	amount := 10.0
	req := AmountRequest{Amount: &amount}
	SanitizeStruct(&req)
	assert.Equal(t, 10.0, *req.Amount)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	req := PayWithBindingRequest{BindingID: "  b-1  "}
	SanitizeStruct(req)
	assert.Equal(t, "  b-1  ", req.BindingID)
}

// --- custom validator tests ---

func TestValidateSafeID(t *testing.T) {
	cases := []struct {
		value string
		ok    bool
	}{
		{"rbs", true},
		{"open.ru", true},
		{"alfa-bank_2", true},
		{"rbs;drop table", false},
		{"a b", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, safeStringRe.MatchString(tc.value), tc.value)
	}
}

func TestValidateSafeURL(t *testing.T) {
	cases := []struct {
		value string
		ok    bool
	}{
		{"https://shop.example/return", true},
		{"http://shop.example/cancel", true},
		{"", true},
		{"ftp://shop.example", false},
		{"javascript:alert(1)", false},
		{"not a url", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, checkURL(tc.value), tc.value)
	}
}

func checkURL(raw string) bool {
	if raw == "" {
		return true
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
