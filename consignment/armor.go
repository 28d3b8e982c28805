package consignment

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rgb-go/rgb/encode"
	"golang.org/x/xerrors"
)

const (
	armorBegin = "-----BEGIN RGB CONSIGNMENT-----"
	armorEnd   = "-----END RGB CONSIGNMENT-----"

	armorLineWidth = 64
)

// magic prefixes the binary encoding so a truncated or foreign stream is
// rejected before the payload is parsed.
var magic = [8]byte{'R', 'G', 'B', 0, 'C', 'S', 'G', 'N'}

// consignmentBody is a method-free alias so the cbor encoder serializes the
// struct fields instead of re-entering MarshalBinary/UnmarshalBinary.
type consignmentBody Consignment

// MarshalBinary encodes the consignment with the magic and version frame
// around the canonical payload. The output is deterministic.
func (c *Consignment) MarshalBinary() ([]byte, error) {
	if err := c.CheckShape(); err != nil {
		return nil, xerrors.Errorf("couldn't encode: %v", err)
	}

	payload, err := encode.Marshal((*consignmentBody)(c))
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode payload: %v", err)
	}

	out := make([]byte, 0, len(magic)+2+len(payload))
	out = append(out, magic[:]...)
	out = append(out, byte(c.Version>>8), byte(c.Version))
	out = append(out, payload...)

	return out, nil
}

// UnmarshalBinary decodes a framed consignment, enforcing the magic, the
// version and the operation bound.
func (c *Consignment) UnmarshalBinary(data []byte) error {
	if len(data) < len(magic)+2 {
		return xerrors.New("stream too short for a consignment frame")
	}

	if !bytes.Equal(data[:len(magic)], magic[:]) {
		return xerrors.New("stream does not carry the consignment magic")
	}

	version := uint16(data[8])<<8 | uint16(data[9])
	if version == 0 || version > CurrentVersion {
		return xerrors.Errorf("unsupported consignment version %d", version)
	}

	err := encode.Unmarshal(data[10:], (*consignmentBody)(c))
	if err != nil {
		return xerrors.Errorf("couldn't decode payload: %v", err)
	}

	if c.Version != version {
		return xerrors.Errorf("frame version %d does not match payload version %d",
			version, c.Version)
	}

	if err := c.CheckShape(); err != nil {
		return xerrors.Errorf("malformed consignment: %v", err)
	}

	return nil
}

// Armor renders the consignment as an ASCII-armored block. The headers are
// informational except the checksum; the id and checksum are verified again
// on parsing so a corrupted block never yields a consignment.
func (c *Consignment) Armor() (string, error) {
	raw, err := c.MarshalBinary()
	if err != nil {
		return "", err
	}

	checksum := sha256.Sum256(raw)

	sb := strings.Builder{}
	sb.WriteString(armorBegin)
	sb.WriteByte('\n')

	fmt.Fprintf(&sb, "Id: %x\n", [32]byte(c.ID()))
	fmt.Fprintf(&sb, "Version: %d\n", c.Version)

	kind := "contract"
	if c.Transfer {
		kind = "transfer"
	}

	fmt.Fprintf(&sb, "Type: %s\n", kind)
	fmt.Fprintf(&sb, "Contract: %x\n", [32]byte(c.ContractID()))
	fmt.Fprintf(&sb, "Schema: %x\n", [32]byte(c.SchemaID()))

	ifaces := make([]string, len(c.Ifaces))
	for i, impl := range c.Ifaces {
		ifaces[i] = fmt.Sprintf("%x", [32]byte(impl.ID()))
	}

	sort.Strings(ifaces)
	for _, line := range ifaces {
		fmt.Fprintf(&sb, "Interface: %s\n", line)
	}

	terminals := make([]string, len(c.Terminals))
	for i, t := range c.Terminals {
		terminals[i] = fmt.Sprintf("%x", [32]byte(t.Bundle))
	}

	sort.Strings(terminals)
	for _, line := range terminals {
		fmt.Fprintf(&sb, "Terminal: %s\n", line)
	}

	fmt.Fprintf(&sb, "Check-SHA256: %x\n", checksum)
	sb.WriteByte('\n')

	encoded := base64.StdEncoding.EncodeToString(raw)
	for len(encoded) > armorLineWidth {
		sb.WriteString(encoded[:armorLineWidth])
		sb.WriteByte('\n')
		encoded = encoded[armorLineWidth:]
	}

	sb.WriteString(encoded)
	sb.WriteByte('\n')
	sb.WriteString(armorEnd)
	sb.WriteByte('\n')

	return sb.String(), nil
}

// ParseArmor reads an armored block back into a consignment. The payload
// checksum and the declared id are both verified; a mismatch of either is a
// hard error.
func ParseArmor(reader io.Reader) (*Consignment, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<26)

	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == armorBegin {
			break
		}
	}

	headers := map[string]string{}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}

		parts := strings.SplitN(line, ": ", 2)
		if len(parts) != 2 {
			return nil, xerrors.Errorf("malformed armor header %q", line)
		}

		// Repeatable headers are not needed for verification, so the last
		// value wins for those.
		headers[parts[0]] = parts[1]
	}

	payload := strings.Builder{}
	closed := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == armorEnd {
			closed = true

			break
		}

		payload.WriteString(line)
	}

	if err := scanner.Err(); err != nil {
		return nil, xerrors.Errorf("couldn't read armor: %v", err)
	}

	if !closed {
		return nil, xerrors.New("armor block is not terminated")
	}

	raw, err := base64.StdEncoding.DecodeString(payload.String())
	if err != nil {
		return nil, xerrors.Errorf("couldn't decode armor payload: %v", err)
	}

	declaredSum, ok := headers["Check-SHA256"]
	if !ok {
		return nil, xerrors.New("armor block is missing the Check-SHA256 header")
	}

	checksum := sha256.Sum256(raw)
	if declaredSum != hex.EncodeToString(checksum[:]) {
		return nil, xerrors.New("armor checksum mismatch")
	}

	c := &Consignment{}

	err = c.UnmarshalBinary(raw)
	if err != nil {
		return nil, err
	}

	declaredID, ok := headers["Id"]
	if !ok {
		return nil, xerrors.New("armor block is missing the Id header")
	}

	id := c.ID()
	if declaredID != hex.EncodeToString(id[:]) {
		return nil, xerrors.New("armor id does not match the consignment content")
	}

	return c, nil
}
