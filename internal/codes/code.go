package codes

import (
	"errors"
	"strings"
)

// 兑换码解析的错误
var ErrInvalidCode = errors.New("无效的兑换码")

// 字符表剔除了 0/O、1/I 等易混淆字符
const alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// 序列号混淆密钥，按序列号低 4 位选取
// 上线后不可变更，否则历史兑换码无法解析
// 低 4 位恒为 0，混淆不改变序列号低位，解析时据此校验密钥下标
var secrets = [16]uint32{
	0x5A1C3E70, 0x2F8D6A40, 0x7C35B9E0, 0x91E4D050,
	0x3B6F82C0, 0xD428A190, 0x6E93C570, 0x1A7D4B30,
	0x85C2F6D0, 0x4D19E8A0, 0xB7608F20, 0x29F5D780,
	0xE3A46B50, 0x78B1C9F0, 0xC56E2D80, 0x0F947A30,
}

// 校验和的权重序列
var weights = [16]uint64{3, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47, 53, 59, 61}

const (
	payloadChars = 9  // 载荷部分的字符数，9 个 base32 字符覆盖 45 位
	codeLength   = 10 // 兑换码总长度，首字符编码密钥下标
)

var charIndex [128]int8

func init() {
	for i := range charIndex {
		charIndex[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		charIndex[alphabet[i]] = int8(i)
	}
}

// checksum 对序列号逐 4 位加权求和，折叠为 13 位
func checksum(serial uint32) uint64 {
	var sum uint64
	value := uint64(serial)
	for i := 0; value > 0; i++ {
		sum += (value & 0xF) * weights[i&0xF]
		value >>= 4
	}
	return (sum ^ (sum >> 13)) & 0x1FFF
}

// Generate 根据序列号生成兑换码
// 载荷为 13 位校验和拼接 32 位混淆后的序列号，共 45 位
func Generate(serial uint) string {
	s := uint32(serial)
	idx := s & 0xF
	masked := s ^ secrets[idx]
	payload := checksum(s)<<32 | uint64(masked)

	buf := make([]byte, codeLength)
	buf[0] = alphabet[idx]
	for i := codeLength - 1; i >= 1; i-- {
		buf[i] = alphabet[payload&0x1F]
		payload >>= 5
	}
	return string(buf)
}

// Parse 解析兑换码并校验，返回序列号
func Parse(code string) (uint, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != codeLength {
		return 0, ErrInvalidCode
	}
	idx := lookup(code[0])
	if idx < 0 || idx > 15 {
		return 0, ErrInvalidCode
	}

	var payload uint64
	for i := 1; i < codeLength; i++ {
		v := lookup(code[i])
		if v < 0 {
			return 0, ErrInvalidCode
		}
		payload = payload<<5 | uint64(v)
	}

	masked := uint32(payload & 0xFFFFFFFF)
	serial := masked ^ secrets[idx]
	if serial&0xF != uint32(idx) {
		return 0, ErrInvalidCode
	}
	if checksum(serial) != payload>>32 {
		return 0, ErrInvalidCode
	}
	return uint(serial), nil
}

func lookup(c byte) int {
	if c >= 128 {
		return -1
	}
	return int(charIndex[c])
}
