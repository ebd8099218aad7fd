package chain

import (
	"fmt"

	"github.com/aivve/karbowanec/cnbinary"
	"github.com/aivve/karbowanec/kv"
)

const (
	txExtraTagNonce = 0x02

	nonceTagPaymentID          = 0x00
	nonceTagEncryptedPaymentID = 0x01
)

// extractPaymentID scans a transaction's extra TLV stream for a nonce field
// carrying a payment id (§3's PaymentIdEntry index), following the same
// tag-then-length-or-fixed-size walk as currency.HasMergeMiningTag. It
// returns the raw id bytes (32 for an unencrypted payment id, 8 for an
// encrypted one) and reports whether one was found.
func extractPaymentID(extra []byte) ([]byte, bool) {
	for i := 0; i < len(extra); {
		tag := extra[i]
		i++
		if tag == txExtraTagNonce {
			size, n, err := cnbinary.ReadVarint(extra, i)
			if err != nil {
				return nil, false
			}
			nonce := extra[n : n+int(size)]
			i = n + int(size)
			if id, ok := paymentIDFromNonce(nonce); ok {
				return id, true
			}
			continue
		}
		if i >= len(extra) {
			break
		}
		size, n, err := cnbinary.ReadVarint(extra, i)
		if err != nil {
			break
		}
		i = n + int(size)
	}
	return nil, false
}

func paymentIDFromNonce(nonce []byte) ([]byte, bool) {
	if len(nonce) == 33 && nonce[0] == nonceTagPaymentID {
		return nonce[1:33], true
	}
	if len(nonce) == 9 && nonce[0] == nonceTagEncryptedPaymentID {
		return nonce[1:9], true
	}
	return nil, false
}

// pushPaymentID appends txHash to the PaymentIdEntry list for tx's payment
// id, if it carries one. A no-op when tx.Extra has no payment-id nonce.
func (m *Manager) pushPaymentID(wb *kv.WriteBatch, tx *cnbinary.Transaction, txHash cnbinary.Hash) error {
	id, ok := extractPaymentID(tx.Extra)
	if !ok {
		return nil
	}
	entry, err := m.paymentIdEntryLocked(id)
	if err != nil {
		return fmt.Errorf("chain: read payment id entry: %w", err)
	}
	if entry == nil {
		entry = &paymentIdEntry{}
	}
	entry.TxHashes = append(entry.TxHashes, txHash)
	data, err := encodePaymentIdEntry(entry)
	if err != nil {
		return err
	}
	wb.Put(kv.BucketPaymentIDs, id, data, false)
	return nil
}

// popPaymentID removes tx's membership from its payment id's list (§4.2.2
// step 2, "delete its payment-id membership").
func (m *Manager) popPaymentID(wb *kv.WriteBatch, tx *cnbinary.Transaction, txHash cnbinary.Hash) error {
	id, ok := extractPaymentID(tx.Extra)
	if !ok {
		return nil
	}
	entry, err := m.paymentIdEntryLocked(id)
	if err != nil {
		return fmt.Errorf("chain: read payment id entry: %w", err)
	}
	if entry == nil {
		return nil
	}
	kept := entry.TxHashes[:0]
	for _, h := range entry.TxHashes {
		if h != txHash {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		wb.Delete(kv.BucketPaymentIDs, id, false)
		return nil
	}
	entry.TxHashes = kept
	data, err := encodePaymentIdEntry(entry)
	if err != nil {
		return err
	}
	wb.Put(kv.BucketPaymentIDs, id, data, false)
	return nil
}

func (m *Manager) paymentIdEntryLocked(id []byte) (*paymentIdEntry, error) {
	data, ok, err := m.store.Get(kv.BucketPaymentIDs, id)
	if err != nil || !ok {
		return nil, err
	}
	return decodePaymentIdEntry(data)
}

// FindTransactionsByPaymentID returns the hashes of every transaction
// whose extra field carries the given payment id (unencrypted 32-byte form
// or encrypted 8-byte form), for wallets scanning for incoming payments.
func (m *Manager) FindTransactionsByPaymentID(id []byte) ([]cnbinary.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, err := m.paymentIdEntryLocked(id)
	if err != nil || entry == nil {
		return nil, err
	}
	return entry.TxHashes, nil
}
