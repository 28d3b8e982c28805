// Package consignment implements the transport container of contract
// history: a self-contained bundle of schema, genesis, operations, witness
// anchors and terminals that a peer can validate independently. A
// consignment is content-addressed; its identity is invariant under the
// insertion order of every set-valued field but pinned to the protocol
// version and field sequence.
package consignment

import (
	"fmt"

	"github.com/rgb-go/rgb/contract"
	"github.com/rgb-go/rgb/encode"
	"github.com/rgb-go/rgb/schema"
	"github.com/rgb-go/rgb/seal"
	"golang.org/x/xerrors"
)

// CurrentVersion is the protocol version written by this implementation.
const CurrentVersion = uint16(2)

// MaxOps bounds the number of operation records a consignment may carry.
// Exceeding it is a hard decode error protecting against unbounded memory
// allocation from a malicious stream.
const MaxOps = 65535

// ConsignmentId is the content commitment of a consignment.
type ConsignmentId [32]byte

func (id ConsignmentId) String() string {
	return fmt.Sprintf("%x", id[:])[:8]
}

// Terminal marks a bundle where the history transferred by the consignment
// ends, together with the seals of the beneficiary. The seals may be
// concealed when the beneficiary chose not to disclose the backing outputs.
type Terminal struct {
	_ struct{} `cbor:",toarray"`

	Bundle contract.BundleId
	Seals  []seal.Seal
}

// Attachment is a binary blob referenced by attachment-kind owned state.
type Attachment struct {
	_ struct{} `cbor:",toarray"`

	Data []byte
}

// ID returns the content-addressed identifier of the blob.
func (a Attachment) ID() contract.AttachId {
	return contract.AttachId(encode.DigestBytes("rgb:attachment", a.Data))
}

// ContentSig is a signature of an identity over a content id. The signature
// scheme is opaque to this engine.
type ContentSig struct {
	_ struct{} `cbor:",toarray"`

	Content  [32]byte
	Identity string
	Sig      []byte
}

// Consignment is the self-contained transfer of contract history. The
// transfer flag distinguishes a state transfer, which has terminals, from a
// plain contract announcement.
type Consignment struct {
	_ struct{} `cbor:",toarray"`

	Version  uint16
	Transfer bool

	Schema     schema.Schema
	Ifaces     []schema.IfaceImpl
	Genesis    contract.Genesis
	Extensions []contract.Extension
	Bundles    []contract.BundledWitness
	Terminals  []Terminal

	TypeSystem  []byte
	Scripts     [][]byte
	Attachments []Attachment
	Supplements [][]byte
	Signatures  []ContentSig
}

// ContractID returns the contract the consignment transfers.
func (c *Consignment) ContractID() contract.ContractId {
	return c.Genesis.ContractID()
}

// SchemaID returns the id of the embedded schema.
func (c *Consignment) SchemaID() contract.SchemaId {
	return c.Schema.ID()
}

// CountOps returns the number of operation records carried, the quantity
// bounded by MaxOps.
func (c *Consignment) CountOps() int {
	count := 1 + len(c.Extensions)
	for _, b := range c.Bundles {
		count += b.Bundle.Len()
	}

	return count
}

// BundleFor returns the bundled witness carrying the bundle id.
func (c *Consignment) BundleFor(id contract.BundleId) (contract.BundledWitness, bool) {
	for _, b := range c.Bundles {
		if b.Bundle.BundleId() == id {
			return b, true
		}
	}

	return contract.BundledWitness{}, false
}

// AttachmentFor returns the blob with the attachment id.
func (c *Consignment) AttachmentFor(id contract.AttachId) (Attachment, bool) {
	for _, a := range c.Attachments {
		if a.ID() == id {
			return a, true
		}
	}

	return Attachment{}, false
}

// TypeSystemID returns the content id of the embedded type system.
func (c *Consignment) TypeSystemID() [32]byte {
	return encode.DigestBytes("rgb:type-system", c.TypeSystem)
}

// ID computes the consignment identity. Every set-valued field is committed
// through an order-independent set digest, so permuting the stored order of
// ifaces, bundles, extensions, terminals, attachments, supplements, scripts
// or signatures does not change the id; the field sequence itself is fixed
// by the protocol version.
func (c *Consignment) ID() ConsignmentId {
	implIds := make([]encode.Digest, len(c.Ifaces))
	for i, impl := range c.Ifaces {
		implIds[i] = encode.Digest(impl.ID())
	}

	bundleHashes := make([]encode.Digest, len(c.Bundles))
	for i, b := range c.Bundles {
		bundleHashes[i] = b.DiscloseHash()
	}

	extensionHashes := make([]encode.Digest, len(c.Extensions))
	for i, e := range c.Extensions {
		extensionHashes[i] = e.DiscloseHash()
	}

	terminalHashes := make([]encode.Digest, len(c.Terminals))
	for i, t := range c.Terminals {
		terminalHashes[i] = terminalDisclosure(t)
	}

	attachIds := make([]encode.Digest, len(c.Attachments))
	for i, a := range c.Attachments {
		attachIds[i] = encode.Digest(a.ID())
	}

	supplementIds := make([]encode.Digest, len(c.Supplements))
	for i, s := range c.Supplements {
		supplementIds[i] = encode.DigestBytes("rgb:supplement", s)
	}

	scriptIds := make([]encode.Digest, len(c.Scripts))
	for i, s := range c.Scripts {
		scriptIds[i] = encode.DigestBytes("rgb:script", s)
	}

	sigHashes := make([]encode.Digest, len(c.Signatures))
	for i, s := range c.Signatures {
		digest, err := encode.DigestValue("rgb:content-sig", s)
		if err != nil {
			panic("signature encoding failed: " + err.Error())
		}

		sigHashes[i] = digest
	}

	digest, err := encode.DigestValue("rgb:consignment", struct {
		_ struct{} `cbor:",toarray"`

		Version     uint16
		Transfer    bool
		ContractID  [32]byte
		Genesis     [32]byte
		Ifaces      [32]byte
		Bundles     [32]byte
		Extensions  [32]byte
		Terminals   [32]byte
		Attachments [32]byte
		Supplements [32]byte
		TypeSystem  [32]byte
		Scripts     [32]byte
		Signatures  [32]byte
	}{
		Version:     c.Version,
		Transfer:    c.Transfer,
		ContractID:  c.ContractID(),
		Genesis:     c.Genesis.DiscloseHash(),
		Ifaces:      encode.DigestSet("rgb:set:ifaces", implIds),
		Bundles:     encode.DigestSet("rgb:set:bundles", bundleHashes),
		Extensions:  encode.DigestSet("rgb:set:extensions", extensionHashes),
		Terminals:   encode.DigestSet("rgb:set:terminals", terminalHashes),
		Attachments: encode.DigestSet("rgb:set:attachments", attachIds),
		Supplements: encode.DigestSet("rgb:set:supplements", supplementIds),
		TypeSystem:  c.TypeSystemID(),
		Scripts:     encode.DigestSet("rgb:set:scripts", scriptIds),
		Signatures:  encode.DigestSet("rgb:set:signatures", sigHashes),
	})
	if err != nil {
		panic("consignment encoding failed: " + err.Error())
	}

	return ConsignmentId(digest)
}

// The terminal disclosure commits to the bundle and the secret form of the
// seals, so revealing a terminal seal never changes the consignment id.
func terminalDisclosure(t Terminal) encode.Digest {
	secrets := make([]encode.Digest, len(t.Seals))
	for i, s := range t.Seals {
		secrets[i] = encode.Digest(s.Secret())
	}

	digest, err := encode.DigestValue("rgb:terminal", struct {
		_ struct{} `cbor:",toarray"`

		Bundle [32]byte
		Seals  [32]byte
	}{
		Bundle: t.Bundle,
		Seals:  encode.DigestSet("rgb:set:terminal-seals", secrets),
	})
	if err != nil {
		panic("terminal encoding failed: " + err.Error())
	}

	return digest
}

// RevealSeals implements seal.Revealer across the whole container: genesis,
// extensions, disclosed transitions and terminals.
func (c *Consignment) RevealSeals(known []seal.Revealed) int {
	count := c.Genesis.Owned.RevealSeals(known)

	for i := range c.Extensions {
		count += c.Extensions[i].Owned.RevealSeals(known)
	}

	for i := range c.Bundles {
		bundle := c.Bundles[i].Bundle
		for _, t := range bundle.KnownTransitions() {
			revealed := t.Owned.RevealSeals(known)
			if revealed > 0 {
				// The transition id is invariant under revelation, so the
				// updated copy replaces the stored one in place.
				_, err := bundle.RevealTransition(t)
				if err != nil {
					continue
				}

				count += revealed
			}
		}
	}

	for i := range c.Terminals {
		for j := range c.Terminals[i].Seals {
			s := c.Terminals[i].Seals[j]
			for _, candidate := range known {
				if s.Reveal(candidate) {
					c.Terminals[i].Seals[j] = s
					count++

					break
				}
			}
		}
	}

	return count
}

// ConcealSeals implements seal.Revealer across the whole container.
func (c *Consignment) ConcealSeals(keep []seal.SecretSeal) int {
	count := c.Genesis.Owned.ConcealSeals(keep)

	for i := range c.Extensions {
		count += c.Extensions[i].Owned.ConcealSeals(keep)
	}

	for i := range c.Bundles {
		for _, t := range c.Bundles[i].Bundle.KnownTransitions() {
			count += t.Owned.ConcealSeals(keep)
		}
	}

	for i := range c.Terminals {
		for j := range c.Terminals[i].Seals {
			s := c.Terminals[i].Seals[j]
			if !s.IsRevealed() || inSecretSet(keep, s.Secret()) {
				continue
			}

			c.Terminals[i].Seals[j] = s.Conceal()
			count++
		}
	}

	return count
}

func inSecretSet(set []seal.SecretSeal, s seal.SecretSeal) bool {
	for _, member := range set {
		if member == s {
			return true
		}
	}

	return false
}

// CheckShape performs the static well-formedness checks that do not need a
// chain resolver: version, operation bound and transfer shape.
func (c *Consignment) CheckShape() error {
	if c.Version == 0 || c.Version > CurrentVersion {
		return xerrors.Errorf("unsupported consignment version %d", c.Version)
	}

	if c.CountOps() > MaxOps {
		return xerrors.Errorf("consignment carries %d operations, above the %d bound",
			c.CountOps(), MaxOps)
	}

	if c.Transfer && len(c.Terminals) == 0 {
		return xerrors.New("transfer consignment has no terminal")
	}

	return nil
}
