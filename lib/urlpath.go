package lib

import (
	"fmt"
	"net/url"
	"path"
)

// BuildURLPath joins escaped path segments into an absolute API path.
func BuildURLPath(args ...interface{}) string {
	pathArgs := []string{"/"}
	for _, a := range args {
		var str string
		switch v := a.(type) {
		case string:
			str = v
		default:
			str = fmt.Sprint(v)
		}
		pathArgs = append(pathArgs, url.PathEscape(str))
	}
	return path.Join(pathArgs...)
}
