package config

import (
	"errors"
	"fmt"

	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/spf13/pflag"
)

// ErrorKind 对配置错误进行分类。
type ErrorKind int

// 配置错误类别
const (
	// KindInvalidPort 端口无法解析为 1-65535 之间的十进制整数
	KindInvalidPort ErrorKind = iota + 1
	// KindInvalidSignatureType 签名类型不是 http 或 cloudevent
	KindInvalidSignatureType
	// KindUnrecognizedOption 命令行中出现未知选项
	KindUnrecognizedOption
	// KindBadUsage 其他命令行用法错误（缺少选项值、多余的位置参数等）
	KindBadUsage
	// KindNoHandlerForTarget 目标函数为空或未在注册表中找到
	KindNoHandlerForTarget
	// KindSignatureMismatch 目标函数的签名类型与配置的签名类型不一致
	KindSignatureMismatch
	// KindInvalidSettings 设置文件无法读取或解析
	KindInvalidSettings
)

// Source 表示配置值的来源。
type Source int

// 配置来源，优先级从低到高
const (
	SourceDefault Source = iota
	SourceEnv
	SourceFlag
)

// String 实现 fmt.Stringer 接口。
func (s Source) String() string {
	switch s {
	case SourceEnv:
		return "environment"
	case SourceFlag:
		return "flag"
	default:
		return "default"
	}
}

// Error 是启动阶段的配置错误。
// 所有配置错误都是致命的：进程打印消息后以 usage 退出码结束，不会绑定端口。
type Error struct {
	// Kind 错误类别
	Kind ErrorKind
	// Source 出错值的来源
	Source Source
	// Name 出错的选项名（来源为 flag 时）或环境变量名（来源为环境变量时）
	Name string
	// Value 出错的原始值
	Value string
	// Want 期望值（仅签名类型不一致时使用）
	Want string
	// Err 底层错误（可选）
	Err error
}

// Error 实现 error 接口，返回面向用户的错误消息。
func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidPort:
		return e.badValue("")
	case KindInvalidSignatureType:
		return e.badValue(fmt.Sprintf(" Allowed values: %s.", domain.AllowedSignatureTypes()))
	case KindUnrecognizedOption:
		return fmt.Sprintf("Could not find an option named %q.", e.Name)
	case KindBadUsage:
		if e.Err != nil {
			return e.Err.Error()
		}
		return fmt.Sprintf("Unexpected argument %q.", e.Value)
	case KindNoHandlerForTarget:
		return fmt.Sprintf("There is no handler configured for FUNCTION_TARGET `%s`.", e.Value)
	case KindSignatureMismatch:
		return fmt.Sprintf("The function `%s` has signature type %q, but FUNCTION_SIGNATURE_TYPE is %q.", e.Name, e.Value, e.Want)
	case KindInvalidSettings:
		return fmt.Sprintf("Could not load settings from %q: %v", e.Value, e.Err)
	default:
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
}

// badValue 根据来源生成 "错误取值" 类消息，来自环境变量与来自命令行的措辞不同。
func (e *Error) badValue(suffix string) string {
	if e.Source == SourceFlag {
		return fmt.Sprintf("Bad value for option \"--%s\": %q.%s", e.Name, e.Value, suffix)
	}
	return fmt.Sprintf("Bad value for environment variable %s: %q.%s", e.Name, e.Value, suffix)
}

// Unwrap 返回底层错误。
func (e *Error) Unwrap() error {
	return e.Err
}

// ShowUsage 报告打印错误后是否需要紧跟完整用法说明。
// 只有来自命令行的错误才附带用法说明，来自环境变量的错误只打印消息本身。
func (e *Error) ShowUsage() bool {
	return e.Source == SourceFlag
}

// InvalidPort 创建端口取值错误。
func InvalidPort(raw string, src Source) *Error {
	return &Error{Kind: KindInvalidPort, Source: src, Name: nameFor(src, FlagPort, EnvPort), Value: raw}
}

// InvalidSignatureType 创建签名类型取值错误。
func InvalidSignatureType(raw string, src Source) *Error {
	return &Error{Kind: KindInvalidSignatureType, Source: src, Name: nameFor(src, FlagSignatureType, EnvSignatureType), Value: raw}
}

// UnrecognizedOption 创建未知选项错误。
func UnrecognizedOption(name string) *Error {
	return &Error{Kind: KindUnrecognizedOption, Source: SourceFlag, Name: name}
}

// UnexpectedArgument 创建多余位置参数错误。
func UnexpectedArgument(arg string) *Error {
	return &Error{Kind: KindBadUsage, Source: SourceFlag, Value: arg}
}

// NoHandlerForTarget 创建目标函数不存在错误。
// 该错误不附带用法说明，无论目标来自命令行还是环境变量。
func NoHandlerForTarget(target string) *Error {
	return &Error{Kind: KindNoHandlerForTarget, Source: SourceDefault, Name: EnvTarget, Value: target}
}

// SignatureMismatch 创建签名类型不一致错误。
func SignatureMismatch(target string, registered, configured domain.SignatureType) *Error {
	return &Error{
		Kind:  KindSignatureMismatch,
		Name:  target,
		Value: string(registered),
		Want:  string(configured),
	}
}

// InvalidSettings 创建设置文件错误。
func InvalidSettings(path string, src Source, err error) *Error {
	return &Error{Kind: KindInvalidSettings, Source: src, Name: nameFor(src, FlagConfig, EnvConfig), Value: path, Err: err}
}

// FlagError 将 pflag 的解析错误归类为配置错误。
// 可直接用作 cobra.Command.SetFlagErrorFunc 的回调。
func FlagError(err error) *Error {
	var notExist *pflag.NotExistError
	if errors.As(err, &notExist) {
		name := notExist.GetSpecifiedName()
		if name == "" {
			name = notExist.GetSpecifiedShortnames()
		}
		return UnrecognizedOption(name)
	}
	return &Error{Kind: KindBadUsage, Source: SourceFlag, Err: err}
}

func nameFor(src Source, flag, env string) string {
	if src == SourceFlag {
		return flag
	}
	return env
}
