package bot

import (
	"errors"
	"strings"
)

// 回调动作
const (
	ActionApprove = "a"
	ActionReject  = "r"
)

// callbackVersion 回调数据格式版本，格式变更时递增
const callbackVersion = "v1"

// ErrBadCallback 无法识别的回调数据
var ErrBadCallback = errors.New("unrecognized callback data")

// EncodeCallback 生成按钮回调数据 v1:<a|r>:<id>
func EncodeCallback(action, id string) string {
	return callbackVersion + ":" + action + ":" + id
}

// ParseCallback 解析回调数据，返回动作与待确认记录 ID
func ParseCallback(data string) (string, string, error) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] != callbackVersion {
		return "", "", ErrBadCallback
	}
	action, id := parts[1], strings.TrimSpace(parts[2])
	if action != ActionApprove && action != ActionReject {
		return "", "", ErrBadCallback
	}
	if id == "" || strings.Contains(id, ":") {
		return "", "", ErrBadCallback
	}
	return action, id, nil
}
