package util

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
)

// namespace scopes content ids to this tool so equal bytes hashed by other
// programs do not collide with ours.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/jpfielding/imagewrap.go"))

// Md5ThenHex is a quick hasher
func Md5ThenHex(value []byte) string {
	hasher := md5.New()
	hasher.Write(value)
	return hex.EncodeToString(hasher.Sum(nil))
}

// ContentUUID derives a stable name-based UUID from image bytes.
func ContentUUID(data []byte) string {
	return uuid.NewMD5(namespace, data).String()
}

// HashUUID derives a UUID from the JSON form of value, e.g. a decoded
// header, or "" if value cannot be marshalled.
func HashUUID(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return ContentUUID(raw)
}
