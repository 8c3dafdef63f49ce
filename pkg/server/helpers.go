package server

import (
	"net/http"
	"strconv"
)

func parseOffset(r *http.Request) uint64 {
	v, err := strconv.ParseUint(r.URL.Query().Get("offset"), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseKey(r *http.Request) uint32 {
	v, err := strconv.ParseUint(r.URL.Query().Get("key"), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}
