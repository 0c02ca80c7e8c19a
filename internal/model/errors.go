package model

import "errors"

// 业务错误变体
// AlreadyExists 是条件写入的预期替代结果，调用方用 errors.Is 判断后回退到追加；
// 存储/网络故障则按普通错误向上传播
var (
	ErrChatAlreadyExists = errors.New("chat already exists")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
)
