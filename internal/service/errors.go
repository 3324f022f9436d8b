package service

import (
	"errors"
)

// 业务错误集中定义，handler 层据此映射响应码
// 这里的每个错误都是调用方可自行修正的业务结果，不做自动重试
var (
	ErrInvalidAmount      = errors.New("积分数量必须大于0")
	ErrInsufficientCredit = errors.New("积分不足")
	ErrAccountNotFound    = errors.New("账户不存在")
	ErrInvalidKind        = errors.New("流水类型不合法")
	ErrEmptyToken         = errors.New("支付凭证不能为空")
	ErrInvalidSignature   = errors.New("webhook 签名校验失败")
	ErrEmailTaken         = errors.New("邮箱已被注册")
	ErrInvalidCredential  = errors.New("邮箱或密码错误")
	ErrBelowMinPurchase   = errors.New("低于最低购买数量")
	ErrSessionNotOwned    = errors.New("充值会话不属于当前用户")
)
