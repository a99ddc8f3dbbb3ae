package coreapi

import (
	"encoding/base64"
	"time"
)

const timestampLayout = "20060102150405"

// The gateway validates timestamps against East Africa Time.
var eat = time.FixedZone("EAT", 3*60*60)

func Timestamp(t time.Time) string {
	return t.In(eat).Format(timestampLayout)
}

// STKPassword is base64(shortcode + passkey + timestamp).
func STKPassword(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}
