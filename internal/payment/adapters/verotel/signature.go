package verotel

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Sign returns the FlexPay signature: SHA-1 over
// "secret:key1=value1:key2=value2" with keys sorted and the signature
// parameter excluded. Callers drop absent optional parameters beforehand.
func Sign(secret string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if strings.EqualFold(key, "signature") {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(secret)
	for _, key := range keys {
		b.WriteByte(':')
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(params.Get(key))
	}
	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// VerifySignature recomputes the digest over every received parameter.
func VerifySignature(secret string, params url.Values) bool {
	got := strings.ToLower(strings.TrimSpace(params.Get("signature")))
	if got == "" {
		return false
	}
	want := Sign(secret, params)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
