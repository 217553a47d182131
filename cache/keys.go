package cache

import (
	"strconv"

	"github.com/saiset-co/sai-feed/types"
	"github.com/saiset-co/sai-feed/utils"
)

// BuildKey derives the deterministic identity of a query from its endpoint
// name and ordered parameter values. Identical inputs always produce the
// same key, so the cache can share entries and deduplicate fetches.
func BuildKey(endpoint string, params ...string) types.CacheKey {
	size := len(endpoint)
	for _, p := range params {
		size += len(p) + 1
	}

	buf := make([]byte, 0, size)
	buf = append(buf, endpoint...)
	for _, p := range params {
		buf = append(buf, '|')
		buf = append(buf, p...)
	}

	return types.CacheKey(utils.BytesToString(buf))
}

func Param(name string, value int64) string {
	return name + "=" + strconv.FormatInt(value, 10)
}

func ParamStr(name, value string) string {
	return name + "=" + value
}
