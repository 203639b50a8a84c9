package proto

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"errors"
)

const (
	PublicKeySize = ed25519.PublicKeySize
	SignatureSize = ed25519.SignatureSize

	// MaxSubmissionTransactions caps the transactions batched in one submit.
	MaxSubmissionTransactions = 500

	submissionTagTransactions uint8 = 1
)

// TransactionNamespace domain-separates transaction signatures.
var TransactionNamespace = []byte("_NULLSPACE_TX")

type Transaction struct {
	Nonce       uint64
	Instruction []byte
	Public      [PublicKeySize]byte
	Signature   [SignatureSize]byte
}

func (t Transaction) PublicHex() string {
	return hex.EncodeToString(t.Public[:])
}

func signingMessage(nonce uint64, instruction []byte) []byte {
	msg := make([]byte, 0, binary.MaxVarintLen32+len(TransactionNamespace)+8+len(instruction))
	msg = binary.AppendUvarint(msg, uint64(len(TransactionNamespace)))
	msg = append(msg, TransactionNamespace...)
	msg = binary.BigEndian.AppendUint64(msg, nonce)
	msg = append(msg, instruction...)
	return msg
}

func SignTransaction(priv ed25519.PrivateKey, nonce uint64, instruction []byte) (Transaction, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return Transaction{}, errors.New("bad private key size")
	}
	if len(instruction) == 0 {
		return Transaction{}, errors.New("empty instruction")
	}
	tx := Transaction{Nonce: nonce, Instruction: append([]byte(nil), instruction...)}
	copy(tx.Public[:], priv.Public().(ed25519.PublicKey))
	copy(tx.Signature[:], ed25519.Sign(priv, signingMessage(nonce, instruction)))
	return tx, nil
}

func (t Transaction) Verify() bool {
	return ed25519.Verify(t.Public[:], signingMessage(t.Nonce, t.Instruction), t.Signature[:])
}

func (t Transaction) Encode() []byte {
	w := NewWriter(8 + len(t.Instruction) + PublicKeySize + SignatureSize)
	w.U64(t.Nonce).Raw(t.Instruction).Raw(t.Public[:]).Raw(t.Signature[:])
	return w.Bytes()
}

func readTransaction(r *Reader) (Transaction, error) {
	var tx Transaction
	nonce, ok := r.ReadU64()
	if !ok {
		return tx, ErrTruncated
	}
	ins, err := skipInstruction(r)
	if err != nil {
		return tx, err
	}
	if !r.ReadFixed(tx.Public[:]) || !r.ReadFixed(tx.Signature[:]) {
		return tx, ErrTruncated
	}
	tx.Nonce = nonce
	tx.Instruction = ins
	return tx, nil
}

func DecodeTransaction(b []byte) (Transaction, error) {
	r := NewReader(b)
	tx, err := readTransaction(r)
	if err != nil {
		return Transaction{}, err
	}
	if r.Remaining() != 0 {
		return Transaction{}, ErrTrailingBytes
	}
	return tx, nil
}

// EncodeSubmission wraps transactions in the ledger's Submission::Transactions
// variant, which is the body of POST /submit.
func EncodeSubmission(txs ...Transaction) ([]byte, error) {
	if len(txs) == 0 || len(txs) > MaxSubmissionTransactions {
		return nil, ErrCountOverflow
	}
	w := NewWriter(1 + binary.MaxVarintLen32 + len(txs)*128)
	w.U8(submissionTagTransactions).Uvarint(uint32(len(txs)))
	for _, tx := range txs {
		w.Raw(tx.Encode())
	}
	return w.Bytes(), nil
}

func DecodeSubmission(b []byte) ([]Transaction, error) {
	r := NewReader(b)
	tag, ok := r.ReadU8()
	if !ok {
		return nil, ErrTruncated
	}
	if tag != submissionTagTransactions {
		return nil, ErrInvalidTag
	}
	n, err := r.ReadLen(MaxSubmissionTransactions)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrCountOverflow
	}
	txs := make([]Transaction, 0, n)
	for i := 0; i < n; i++ {
		tx, err := readTransaction(r)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if r.Remaining() != 0 {
		return nil, ErrTrailingBytes
	}
	return txs, nil
}
