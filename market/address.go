package market

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// AddressLength ist die Länge einer Adresse in Bytes.
const AddressLength = 20

// Address identifiziert einen Teilnehmer (Forscher, Käufer, Factory oder Token).
type Address [AddressLength]byte

// ZeroAddress ist die leere Adresse. Sie ist als Aufrufer nicht zulässig.
var ZeroAddress Address

// ParseAddress liest eine Adresse im Format 0x + 40 Hex-Zeichen (Groß-/Kleinschreibung egal).
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return a, fmt.Errorf("address %q: missing 0x prefix", s)
	}
	raw := s[2:]
	if len(raw) != AddressLength*2 {
		return a, fmt.Errorf("address %q: expected %d hex characters", s, AddressLength*2)
	}
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return a, fmt.Errorf("address %q: %w", s, err)
	}
	return a, nil
}

// MustParseAddress ist wie ParseAddress, panict aber bei Fehlern.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// DeriveAddress berechnet die Adresse eines Objekts, das von creator mit dem gegebenen Nonce erzeugt wird.
// Das Ergebnis ist deterministisch, damit ein Replay des Journals dieselben Adressen liefert.
func DeriveAddress(creator Address, nonce uint64) Address {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)

	h := sha3.NewLegacyKeccak256()
	h.Write(creator[:])
	h.Write(buf[:])
	sum := h.Sum(nil)

	var a Address
	copy(a[:], sum[len(sum)-AddressLength:])
	return a
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string {
	return a.Hex()
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
