package integrations

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
)

// VerifyTrelloSignature checks the X-Trello-Webhook header: base64(HMAC-SHA1(secret, body + callbackURL)).
func VerifyTrelloSignature(secret, callbackURL string, body []byte, header string) bool {
	expected := SignTrelloPayload(secret, callbackURL, body)
	return hmac.Equal([]byte(expected), []byte(header))
}

func SignTrelloPayload(secret, callbackURL string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	mac.Write([]byte(callbackURL))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
