package util

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// ParseObject returns body as a JSON object. A body that is a JSON string
// containing an object is unwrapped once; nothing else is accepted.
func ParseObject(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("body is not valid JSON")
	}
	res := gjson.ParseBytes(body)
	if res.Type == gjson.String {
		inner := res.String()
		if !gjson.Valid(inner) {
			return gjson.Result{}, fmt.Errorf("string body is not valid JSON")
		}
		res = gjson.Parse(inner)
	}
	if !res.IsObject() {
		return gjson.Result{}, fmt.Errorf("body is not a JSON object")
	}
	return res, nil
}
