package config

import (
	"os"
	"strconv"

	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// 命令行选项名
const (
	FlagPort          = "port"
	FlagTarget        = "target"
	FlagSignatureType = "signature-type"
	FlagConfig        = "config"
)

// 环境变量名
const (
	EnvPort          = "PORT"
	EnvTarget        = "FUNCTION_TARGET"
	EnvSignatureType = "FUNCTION_SIGNATURE_TYPE"
	EnvConfig        = "FUNCTION_CONFIG"
)

// 内置默认值
const (
	DefaultPort          = "8080"
	DefaultTarget        = "function"
	DefaultSignatureType = string(domain.SignatureHTTP)
)

// viper 键名
const (
	keyPort          = "port"
	keyTarget        = "target"
	keySignatureType = "signature_type"
	keyConfig        = "config"
)

// RegisterFlags 在 FlagSet 上注册框架的命令行选项。
// 端口以字符串形式注册，以便由 Resolver 统一校验并给出包含原始值的错误消息。
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(FlagPort, DefaultPort, "Port on which to listen for HTTP requests (env: "+EnvPort+")")
	fs.String(FlagTarget, DefaultTarget, "Name of the function to invoke for each request (env: "+EnvTarget+")")
	fs.String(FlagSignatureType, DefaultSignatureType,
		"Signature type of the target function: "+domain.AllowedSignatureTypes()+" (env: "+EnvSignatureType+")")
	fs.String(FlagConfig, "", "Path to an optional YAML settings file (env: "+EnvConfig+")")
}

// Resolver 合并命令行选项与环境变量，生成已验证的 Config。
//
// 对每个选项：如果命令行中给出了该选项则使用它；否则如果设置了对应的环境变量
// （即使值为空字符串）则使用环境变量；否则使用内置默认值。
type Resolver struct {
	flags *pflag.FlagSet
	v     *viper.Viper
}

// NewResolver 基于已解析的 FlagSet 创建 Resolver。
// 每个 Resolver 持有独立的 viper 实例，不读写全局状态。
func NewResolver(flags *pflag.FlagSet) *Resolver {
	v := viper.New()
	// 空字符串的环境变量视为"已设置"
	v.AllowEmptyEnv(true)

	bindings := []struct {
		key, flag, env string
	}{
		{keyPort, FlagPort, EnvPort},
		{keyTarget, FlagTarget, EnvTarget},
		{keySignatureType, FlagSignatureType, EnvSignatureType},
		{keyConfig, FlagConfig, EnvConfig},
	}
	for _, b := range bindings {
		if f := flags.Lookup(b.flag); f != nil {
			_ = v.BindPFlag(b.key, f)
		}
		_ = v.BindEnv(b.key, b.env)
	}

	return &Resolver{flags: flags, v: v}
}

// Resolve 生成已验证的 Config。
//
// 校验顺序：设置文件、端口、签名类型、目标函数。
// 返回的错误均为 *Error，目标函数是否存在于注册表由 registry 包负责校验。
func (r *Resolver) Resolve() (*Config, error) {
	settingsPath := r.v.GetString(keyConfig)
	settings, err := LoadSettings(settingsPath)
	if err != nil {
		return nil, InvalidSettings(settingsPath, r.source(FlagConfig, EnvConfig), err)
	}

	rawPort := r.v.GetString(keyPort)
	port, err := ParsePort(rawPort)
	if err != nil {
		return nil, InvalidPort(rawPort, r.source(FlagPort, EnvPort))
	}

	rawSignature := r.v.GetString(keySignatureType)
	signature, ok := domain.ParseSignatureType(rawSignature)
	if !ok {
		return nil, InvalidSignatureType(rawSignature, r.source(FlagSignatureType, EnvSignatureType))
	}

	target := r.v.GetString(keyTarget)
	if target == "" {
		return nil, NoHandlerForTarget(target)
	}

	return &Config{
		Port:          port,
		Target:        target,
		SignatureType: signature,
		Settings:      settings,
	}, nil
}

// source 判断某个选项的取值来源。
func (r *Resolver) source(flag, env string) Source {
	if f := r.flags.Lookup(flag); f != nil && f.Changed {
		return SourceFlag
	}
	if _, ok := os.LookupEnv(env); ok {
		return SourceEnv
	}
	return SourceDefault
}

// ParsePort 将字符串解析为端口号。
// 只接受十进制无符号整数，且必须在 1-65535 之间。
func ParsePort(raw string) (int, error) {
	port, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, err
	}
	if port == 0 {
		return 0, strconv.ErrRange
	}
	return int(port), nil
}
