package jsonrpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// quantity is an unsigned integer encoded either as a JSON number or as a
// 0x-prefixed hex string.
type quantity uint64

func (q *quantity) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*q = 0
		return nil
	}
	var (
		v   uint64
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		v, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return fmt.Errorf("invalid quantity %s: %w", data, err)
	}
	*q = quantity(v)
	return nil
}

func (q quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + strconv.FormatUint(uint64(q), 16))
}

// amount is an arbitrary precision integer encoded as a decimal or hex
// string, or a JSON number.
type amount struct {
	*big.Int
}

func (a *amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		a.Int = nil
		return nil
	}
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return fmt.Errorf("invalid amount %s", data)
	}
	a.Int = n
	return nil
}

func (a amount) MarshalJSON() ([]byte, error) {
	if a.Int == nil {
		return []byte(`"0"`), nil
	}
	return json.Marshal(a.Int.String())
}

func (a amount) value() *big.Int {
	if a.Int == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.Int)
}
