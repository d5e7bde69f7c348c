package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
)

// QueryKey builds a compact key for a query. The parts are joined and
// hashed, so a rendered SQL statement can be used directly.
func QueryKey(namespace string, parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	// 16 bytes keep keys short while staying collision free in practice
	return namespace + ":" + hex.EncodeToString(hash[:16])
}

// IndexerKey returns the key of a forward indexer lookup
func IndexerKey(name string) string {
	return "indexer:" + name
}

// ReverseIndexerKey returns the key of a reverse indexer lookup
func ReverseIndexerKey(id int64) string {
	return "indexer:id:" + strconv.FormatInt(id, 10)
}

func unmarshalJSON(data []byte, dst interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(dst)
}
