// Package stash implements the provider storing the raw building blocks of
// contract histories: geneses, schemata, interface implementations, bundled
// witnesses, extensions, attachments and revealed seals.
//
// The stash is an append-only cache: a Replace call merges the revealed
// parts of the new copy into the stored one and reports whether anything
// changed, so importing the same consignment twice is idempotent. Changes
// live in memory until Commit flushes them to the backing database in one
// transaction.
package stash

import (
	"bytes"

	"github.com/rgb-go/rgb/consignment"
	"github.com/rgb-go/rgb/contract"
	"github.com/rgb-go/rgb/encode"
	"github.com/rgb-go/rgb/schema"
	"github.com/rgb-go/rgb/seal"
	"github.com/rgb-go/rgb/store"
	"github.com/rgb-go/rgb/store/kv"
	"golang.org/x/xerrors"
)

var (
	bucketGenesis    = []byte("stash:genesis")
	bucketSchema     = []byte("stash:schema")
	bucketIface      = []byte("stash:iface")
	bucketBundle     = []byte("stash:bundle")
	bucketExtension  = []byte("stash:extension")
	bucketAttachment = []byte("stash:attachment")
	bucketSeal       = []byte("stash:seal")
	bucketTypeSystem = []byte("stash:type-system")
	bucketSig        = []byte("stash:sig")
	bucketTrust      = []byte("stash:trust")
)

// TrustLevel qualifies how much an identity signing content is trusted.
type TrustLevel int8

const (
	// TrustUnknown is the default for identities never rated.
	TrustUnknown TrustLevel = iota

	// TrustDistrusted marks identities whose signatures must be ignored.
	TrustDistrusted

	// TrustTrusted marks identities whose signatures are accepted.
	TrustTrusted
)

// Stash is the in-memory cache over the stash buckets.
//
// - implements store.Transaction
type Stash struct {
	db    kv.DB
	dirty bool

	geneses     map[contract.ContractId]contract.Genesis
	schemas     map[contract.SchemaId]schema.Schema
	impls       map[contract.ImplId]schema.IfaceImpl
	bundles     map[contract.BundleId]contract.BundledWitness
	extensions  map[contract.Opid]contract.Extension
	attachments map[contract.AttachId][]byte
	seals       map[seal.SecretSeal]seal.Revealed
	typeSystems map[contract.SchemaId][]byte
	sigs        map[[32]byte][]consignment.ContentSig
	trust       map[string]TrustLevel
}

// NewStash creates an ephemeral stash without a backing database.
func NewStash() *Stash {
	return &Stash{
		geneses:     map[contract.ContractId]contract.Genesis{},
		schemas:     map[contract.SchemaId]schema.Schema{},
		impls:       map[contract.ImplId]schema.IfaceImpl{},
		bundles:     map[contract.BundleId]contract.BundledWitness{},
		extensions:  map[contract.Opid]contract.Extension{},
		attachments: map[contract.AttachId][]byte{},
		seals:       map[seal.SecretSeal]seal.Revealed{},
		typeSystems: map[contract.SchemaId][]byte{},
		sigs:        map[[32]byte][]consignment.ContentSig{},
		trust:       map[string]TrustLevel{},
	}
}

// LoadStash creates a stash over the database, reading every bucket into
// the cache.
func LoadStash(db kv.DB) (*Stash, error) {
	s := NewStash()
	s.db = db

	err := db.View(func(txn kv.ReadableTx) error {
		err := loadBucket(txn, bucketGenesis, func(k, v []byte) error {
			g := contract.Genesis{}
			if err := encode.Unmarshal(v, &g); err != nil {
				return err
			}

			s.geneses[g.ContractID()] = g

			return nil
		})
		if err != nil {
			return xerrors.Errorf("genesis bucket: %v", err)
		}

		err = loadBucket(txn, bucketSchema, func(k, v []byte) error {
			sch := schema.Schema{}
			if err := encode.Unmarshal(v, &sch); err != nil {
				return err
			}

			s.schemas[sch.ID()] = sch

			return nil
		})
		if err != nil {
			return xerrors.Errorf("schema bucket: %v", err)
		}

		err = loadBucket(txn, bucketIface, func(k, v []byte) error {
			impl := schema.IfaceImpl{}
			if err := encode.Unmarshal(v, &impl); err != nil {
				return err
			}

			s.impls[impl.ID()] = impl

			return nil
		})
		if err != nil {
			return xerrors.Errorf("iface bucket: %v", err)
		}

		err = loadBucket(txn, bucketBundle, func(k, v []byte) error {
			bw := contract.BundledWitness{}
			if err := encode.Unmarshal(v, &bw); err != nil {
				return err
			}

			s.bundles[bw.Bundle.BundleId()] = bw

			return nil
		})
		if err != nil {
			return xerrors.Errorf("bundle bucket: %v", err)
		}

		err = loadBucket(txn, bucketExtension, func(k, v []byte) error {
			ext := contract.Extension{}
			if err := encode.Unmarshal(v, &ext); err != nil {
				return err
			}

			s.extensions[ext.ID()] = ext

			return nil
		})
		if err != nil {
			return xerrors.Errorf("extension bucket: %v", err)
		}

		err = loadBucket(txn, bucketAttachment, func(k, v []byte) error {
			id := contract.AttachId{}
			copy(id[:], k)

			data := make([]byte, len(v))
			copy(data, v)

			s.attachments[id] = data

			return nil
		})
		if err != nil {
			return xerrors.Errorf("attachment bucket: %v", err)
		}

		err = loadBucket(txn, bucketSeal, func(k, v []byte) error {
			r := seal.Revealed{}
			if err := encode.Unmarshal(v, &r); err != nil {
				return err
			}

			s.seals[r.Conceal()] = r

			return nil
		})
		if err != nil {
			return xerrors.Errorf("seal bucket: %v", err)
		}

		err = loadBucket(txn, bucketTypeSystem, func(k, v []byte) error {
			id := contract.SchemaId{}
			copy(id[:], k)

			data := make([]byte, len(v))
			copy(data, v)

			s.typeSystems[id] = data

			return nil
		})
		if err != nil {
			return xerrors.Errorf("type-system bucket: %v", err)
		}

		err = loadBucket(txn, bucketSig, func(k, v []byte) error {
			content := [32]byte{}
			copy(content[:], k)

			sigs := []consignment.ContentSig{}
			if err := encode.Unmarshal(v, &sigs); err != nil {
				return err
			}

			s.sigs[content] = sigs

			return nil
		})
		if err != nil {
			return xerrors.Errorf("sig bucket: %v", err)
		}

		err = loadBucket(txn, bucketTrust, func(k, v []byte) error {
			if len(v) > 0 {
				s.trust[string(k)] = TrustLevel(int8(v[0]))
			}

			return nil
		})
		if err != nil {
			return xerrors.Errorf("trust bucket: %v", err)
		}

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("couldn't load stash: %v", err)
	}

	return s, nil
}

func loadBucket(txn kv.ReadableTx, name []byte, fn func(k, v []byte) error) error {
	bucket := txn.GetBucket(name)
	if bucket == nil {
		return nil
	}

	return bucket.ForEach(fn)
}

// ReplaceGenesis merges the genesis into the stash. It returns true when
// the stored copy changed.
func (s *Stash) ReplaceGenesis(g contract.Genesis) (bool, error) {
	id := g.ContractID()

	existing, ok := s.geneses[id]
	if !ok {
		s.geneses[id] = g
		s.dirty = true

		return true, nil
	}

	before, err := encode.Marshal(existing)
	if err != nil {
		return false, xerrors.Errorf("couldn't encode genesis: %v", err)
	}

	// The merge runs on a decoded copy so a failed merge leaves the stored
	// genesis untouched.
	merged := contract.Genesis{}
	err = encode.Unmarshal(before, &merged)
	if err != nil {
		return false, xerrors.Errorf("couldn't decode genesis: %v", err)
	}

	err = merged.Owned.MergeReveal(g.Owned)
	if err != nil {
		return false, xerrors.Errorf("couldn't merge genesis %v: %v", id, err)
	}

	return s.storeChanged(before, merged, func() { s.geneses[id] = merged })
}

// ReplaceSchema stores the schema. It returns true when the schema was not
// known before.
func (s *Stash) ReplaceSchema(sch schema.Schema) bool {
	id := sch.ID()

	if _, ok := s.schemas[id]; ok {
		return false
	}

	s.schemas[id] = sch
	s.dirty = true

	return true
}

// ReplaceIfaceImpl stores the interface implementation. It returns true
// when the implementation was not known before.
func (s *Stash) ReplaceIfaceImpl(impl schema.IfaceImpl) bool {
	id := impl.ID()

	if _, ok := s.impls[id]; ok {
		return false
	}

	s.impls[id] = impl
	s.dirty = true

	return true
}

// ReplaceBundle merges the bundled witness into the stash. It returns true
// when the stored copy changed.
func (s *Stash) ReplaceBundle(bw contract.BundledWitness) (bool, error) {
	id := bw.Bundle.BundleId()

	existing, ok := s.bundles[id]
	if !ok {
		s.bundles[id] = bw
		s.dirty = true

		return true, nil
	}

	before, err := encode.Marshal(existing)
	if err != nil {
		return false, xerrors.Errorf("couldn't encode bundle: %v", err)
	}

	merged := contract.BundledWitness{}
	err = encode.Unmarshal(before, &merged)
	if err != nil {
		return false, xerrors.Errorf("couldn't decode bundle: %v", err)
	}

	err = merged.MergeReveal(bw)
	if err != nil {
		return false, xerrors.Errorf("couldn't merge bundle %v: %v", id, err)
	}

	return s.storeChanged(before, merged, func() { s.bundles[id] = merged })
}

// ReplaceExtension stores the extension. It returns true when the stored
// copy changed.
func (s *Stash) ReplaceExtension(ext contract.Extension) (bool, error) {
	id := ext.ID()

	existing, ok := s.extensions[id]
	if !ok {
		s.extensions[id] = ext
		s.dirty = true

		return true, nil
	}

	before, err := encode.Marshal(existing)
	if err != nil {
		return false, xerrors.Errorf("couldn't encode extension: %v", err)
	}

	merged := contract.Extension{}
	err = encode.Unmarshal(before, &merged)
	if err != nil {
		return false, xerrors.Errorf("couldn't decode extension: %v", err)
	}

	err = merged.Owned.MergeReveal(ext.Owned)
	if err != nil {
		return false, xerrors.Errorf("couldn't merge extension %v: %v", id, err)
	}

	return s.storeChanged(before, merged, func() { s.extensions[id] = merged })
}

// ReplaceAttachment stores the blob. It returns true when the blob was not
// known before.
func (s *Stash) ReplaceAttachment(data []byte) (contract.AttachId, bool) {
	id := contract.AttachId(encode.DigestBytes("rgb:attachment", data))

	if _, ok := s.attachments[id]; ok {
		return id, false
	}

	s.attachments[id] = data
	s.dirty = true

	return id, true
}

// ReplaceSeal stores the revealed form of a seal. It returns true when the
// seal was not known before.
func (s *Stash) ReplaceSeal(r seal.Revealed) bool {
	secret := r.Conceal()

	if _, ok := s.seals[secret]; ok {
		return false
	}

	s.seals[secret] = r
	s.dirty = true

	return true
}

func (s *Stash) storeChanged(before []byte, merged interface{}, commit func()) (bool, error) {
	after, err := encode.Marshal(merged)
	if err != nil {
		return false, xerrors.Errorf("couldn't encode merged copy: %v", err)
	}

	if bytes.Equal(before, after) {
		return false, nil
	}

	commit()
	s.dirty = true

	return true, nil
}

// Genesis returns the genesis of the contract.
func (s *Stash) Genesis(id contract.ContractId) (contract.Genesis, error) {
	g, ok := s.geneses[id]
	if !ok {
		return g, store.NotFoundError{Kind: "genesis", Id: id}
	}

	return g, nil
}

// Schema returns the schema with the id.
func (s *Stash) Schema(id contract.SchemaId) (schema.Schema, error) {
	sch, ok := s.schemas[id]
	if !ok {
		return sch, store.NotFoundError{Kind: "schema", Id: id}
	}

	return sch, nil
}

// IfaceImpl returns the interface implementation with the id.
func (s *Stash) IfaceImpl(id contract.ImplId) (schema.IfaceImpl, error) {
	impl, ok := s.impls[id]
	if !ok {
		return impl, store.NotFoundError{Kind: "interface implementation", Id: id}
	}

	return impl, nil
}

// ImplsForSchema returns every implementation targeting the schema.
func (s *Stash) ImplsForSchema(id contract.SchemaId) []schema.IfaceImpl {
	impls := []schema.IfaceImpl{}
	for _, impl := range s.impls {
		if impl.SchemaID == id {
			impls = append(impls, impl)
		}
	}

	return impls
}

// Bundle returns the bundled witness with the bundle id.
func (s *Stash) Bundle(id contract.BundleId) (contract.BundledWitness, error) {
	bw, ok := s.bundles[id]
	if !ok {
		return bw, store.NotFoundError{Kind: "bundle", Id: id}
	}

	return bw, nil
}

// Extension returns the extension with the operation id.
func (s *Stash) Extension(id contract.Opid) (contract.Extension, error) {
	ext, ok := s.extensions[id]
	if !ok {
		return ext, store.NotFoundError{Kind: "extension", Id: id}
	}

	return ext, nil
}

// Attachment returns the blob with the attachment id.
func (s *Stash) Attachment(id contract.AttachId) ([]byte, error) {
	data, ok := s.attachments[id]
	if !ok {
		return nil, store.NotFoundError{Kind: "attachment", Id: id}
	}

	return data, nil
}

// ResolveSeal returns the revealed form of the secret seal when known.
func (s *Stash) ResolveSeal(secret seal.SecretSeal) (seal.Revealed, bool) {
	r, ok := s.seals[secret]

	return r, ok
}

// Contracts returns the ids of every known contract.
func (s *Stash) Contracts() []contract.ContractId {
	ids := make([]contract.ContractId, 0, len(s.geneses))
	for id := range s.geneses {
		ids = append(ids, id)
	}

	return ids
}

// Commit implements store.Transaction. It flushes the cache to the backing
// database in one transaction.
func (s *Stash) Commit() error {
	if !s.dirty || s.db == nil {
		s.dirty = false

		return nil
	}

	err := s.db.Update(func(txn kv.WritableTx) error {
		err := flushMap(txn, bucketGenesis, s.geneses,
			func(id contract.ContractId) []byte { return id[:] })
		if err != nil {
			return err
		}

		err = flushMap(txn, bucketSchema, s.schemas,
			func(id contract.SchemaId) []byte { return id[:] })
		if err != nil {
			return err
		}

		err = flushMap(txn, bucketIface, s.impls,
			func(id contract.ImplId) []byte { return id[:] })
		if err != nil {
			return err
		}

		err = flushMap(txn, bucketBundle, s.bundles,
			func(id contract.BundleId) []byte { return id[:] })
		if err != nil {
			return err
		}

		err = flushMap(txn, bucketExtension, s.extensions,
			func(id contract.Opid) []byte { return id[:] })
		if err != nil {
			return err
		}

		bucket, err := txn.GetBucketOrCreate(bucketAttachment)
		if err != nil {
			return err
		}

		for id, data := range s.attachments {
			if err := bucket.Set(id[:], data); err != nil {
				return err
			}
		}

		err = flushMap(txn, bucketSeal, s.seals,
			func(secret seal.SecretSeal) []byte { return secret[:] })
		if err != nil {
			return err
		}

		bucket, err = txn.GetBucketOrCreate(bucketTypeSystem)
		if err != nil {
			return err
		}

		for id, data := range s.typeSystems {
			if err := bucket.Set(id[:], data); err != nil {
				return err
			}
		}

		err = flushMap(txn, bucketSig, s.sigs,
			func(content [32]byte) []byte { return content[:] })
		if err != nil {
			return err
		}

		bucket, err = txn.GetBucketOrCreate(bucketTrust)
		if err != nil {
			return err
		}

		for identity, level := range s.trust {
			if err := bucket.Set([]byte(identity), []byte{byte(level)}); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return xerrors.Errorf("couldn't flush stash: %v", err)
	}

	s.dirty = false

	return nil
}

// Rollback implements store.Transaction.
func (s *Stash) Rollback() error {
	return store.ErrRollbackUnsupported
}

// Bundles returns every stored bundled witness.
func (s *Stash) Bundles() []contract.BundledWitness {
	bundles := make([]contract.BundledWitness, 0, len(s.bundles))
	for _, bw := range s.bundles {
		bundles = append(bundles, bw)
	}

	return bundles
}

// Extensions returns every stored extension of the contract.
func (s *Stash) Extensions(contractID contract.ContractId) []contract.Extension {
	extensions := []contract.Extension{}
	for _, ext := range s.extensions {
		if ext.ContractID == contractID {
			extensions = append(extensions, ext)
		}
	}

	return extensions
}

// ReplaceTypeSystem stores the type system of the schema. It returns true
// when it was not known before.
func (s *Stash) ReplaceTypeSystem(id contract.SchemaId, data []byte) bool {
	if len(data) == 0 {
		return false
	}

	if _, ok := s.typeSystems[id]; ok {
		return false
	}

	s.typeSystems[id] = data
	s.dirty = true

	return true
}

// TypeSystem returns the type system stored for the schema, or nil.
func (s *Stash) TypeSystem(id contract.SchemaId) []byte {
	return s.typeSystems[id]
}

// ReplaceSig stores a content signature. It returns true when the signature
// was not known before. Signatures of distrusted identities are kept; the
// trust level is applied on read by the caller.
func (s *Stash) ReplaceSig(sig consignment.ContentSig) (bool, error) {
	data, err := encode.Marshal(sig)
	if err != nil {
		return false, xerrors.Errorf("couldn't encode signature: %v", err)
	}

	for _, existing := range s.sigs[sig.Content] {
		known, err := encode.Marshal(existing)
		if err != nil {
			return false, xerrors.Errorf("couldn't encode signature: %v", err)
		}

		if bytes.Equal(known, data) {
			return false, nil
		}
	}

	s.sigs[sig.Content] = append(s.sigs[sig.Content], sig)
	s.dirty = true

	return true, nil
}

// SigsFor returns the stored signatures over the content id.
func (s *Stash) SigsFor(content [32]byte) []consignment.ContentSig {
	return s.sigs[content]
}

// SetTrust rates the identity.
func (s *Stash) SetTrust(identity string, level TrustLevel) {
	if s.trust[identity] == level {
		return
	}

	s.trust[identity] = level
	s.dirty = true
}

// Trust returns the rating of the identity, TrustUnknown by default.
func (s *Stash) Trust(identity string) TrustLevel {
	return s.trust[identity]
}

func flushMap[K comparable, V any](txn kv.WritableTx, name []byte,
	entries map[K]V, key func(K) []byte) error {

	bucket, err := txn.GetBucketOrCreate(name)
	if err != nil {
		return err
	}

	for k, v := range entries {
		data, err := encode.Marshal(v)
		if err != nil {
			return xerrors.Errorf("couldn't encode entry: %v", err)
		}

		if err := bucket.Set(key(k), data); err != nil {
			return err
		}
	}

	return nil
}
