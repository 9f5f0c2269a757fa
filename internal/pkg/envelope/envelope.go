// internal/pkg/envelope/envelope.go

/*
 * 静态加密信封编解码。
 *
 * 二进制格式（整数一律小端）：
 *   MAGIC(8) | version(1) | saltLen(1) | salt(saltLen) | nonce(12) | tag(16)
 *   | headerLen(4) | header(headerLen, UTF-8 JSON) | ciphertext
 *
 * 密文是对 LEGACY_MAGIC || plaintext 的 AES-256-GCM 加密结果。
 * 内层魔数是独立于 AEAD 标签的解密期完整性/密钥正确性校验，
 * 旧版客户端据此快速判断口令是否正确。
 */
package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/scrypt"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
)

var (
	// Magic 是信封外层魔数，最后一字节随格式大版本演进
	Magic = []byte("QYENVLP1")

	// legacyMagic 是加密前拼接在明文前的内层魔数
	legacyMagic = []byte("QYLEGACY")
)

const (
	// Version 是当前唯一支持的信封版本
	Version byte = 1

	nonceSize = 12
	tagSize   = 16
	saltSize  = 16

	// scrypt 参数，固定写进 Header.KDF 以备将来演进
	scryptN = 32768
	scryptR = 8
	scryptP = 1
	keySize = 32
)

// Header 是信封中的 UTF-8 JSON 头。
type Header struct {
	Scheme    string `json:"scheme"`
	Epoch     int64  `json:"epoch,omitempty"`
	Extra     string `json:"header,omitempty"`
	Signature string `json:"signature,omitempty"`
	KDF       string `json:"kdf"`
}

// deriveKey 用 scrypt 从口令和盐派生 256 位密钥。
func deriveKey(password string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("密钥派生失败: %w", err)
	}
	return key, nil
}

// Encode 把明文封装为加密信封。
func Encode(plaintext []byte, password string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("生成随机盐失败: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("生成随机 nonce 失败: %w", err)
	}

	key, err := deriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	// 内层魔数拼接在明文前一起加密
	inner := make([]byte, 0, len(legacyMagic)+len(plaintext))
	inner = append(inner, legacyMagic...)
	inner = append(inner, plaintext...)

	sealed := aesgcm.Seal(nil, nonce, inner, nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	headerBytes, err := json.Marshal(Header{
		Scheme: "aes-256-gcm",
		KDF:    fmt.Sprintf("scrypt;n=%d;r=%d;p=%d", scryptN, scryptR, scryptP),
	})
	if err != nil {
		return nil, fmt.Errorf("序列化信封头失败: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(Magic) + 2 + len(salt) + nonceSize + tagSize + 4 + len(headerBytes) + len(ciphertext))
	buf.Write(Magic)
	buf.WriteByte(Version)
	buf.WriteByte(byte(len(salt)))
	buf.Write(salt)
	buf.Write(nonce)
	buf.Write(tag)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(headerBytes)))
	buf.Write(lenBuf[:])
	buf.Write(headerBytes)
	buf.Write(ciphertext)

	return buf.Bytes(), nil
}

// Decode 解析并解密一个信封，返回明文。
// 截断或字段非法返回 ErrCorruptEnvelope；解密后内层魔数不符返回 ErrWrongKeyOrCorrupt。
func Decode(data []byte, password string) ([]byte, error) {
	offset := 0
	need := func(n int) error {
		if len(data)-offset < n {
			return fmt.Errorf("%w: 信封被截断", constant.ErrCorruptEnvelope)
		}
		return nil
	}

	if err := need(len(Magic) + 2); err != nil {
		return nil, err
	}
	if !bytes.Equal(data[offset:offset+len(Magic)], Magic) {
		return nil, fmt.Errorf("%w: 外层魔数不符", constant.ErrCorruptEnvelope)
	}
	offset += len(Magic)

	version := data[offset]
	offset++
	if version != Version {
		return nil, fmt.Errorf("%w: 不支持的信封版本 %d", constant.ErrCorruptEnvelope, version)
	}

	saltLen := int(data[offset])
	offset++
	if err := need(saltLen + nonceSize + tagSize + 4); err != nil {
		return nil, err
	}
	salt := data[offset : offset+saltLen]
	offset += saltLen
	nonce := data[offset : offset+nonceSize]
	offset += nonceSize
	tag := data[offset : offset+tagSize]
	offset += tagSize

	headerLen := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if err := need(headerLen); err != nil {
		return nil, err
	}
	var header Header
	if err := json.Unmarshal(data[offset:offset+headerLen], &header); err != nil {
		return nil, fmt.Errorf("%w: 信封头解析失败", constant.ErrCorruptEnvelope)
	}
	offset += headerLen

	ciphertext := data[offset:]

	key, err := deriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	inner, err := aesgcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constant.ErrWrongKeyOrCorrupt, err)
	}

	// AEAD 校验之外再验一次内层魔数
	if len(inner) < len(legacyMagic) || !bytes.Equal(inner[:len(legacyMagic)], legacyMagic) {
		return nil, fmt.Errorf("%w: 内层魔数不符", constant.ErrWrongKeyOrCorrupt)
	}

	return inner[len(legacyMagic):], nil
}
