/*
 * EliasDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package util

import (
	"bytes"
	"crypto/md5"
	"encoding/gob"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"devt.de/krotik/common/bitutil"
	"devt.de/krotik/common/sortutil"
	"devt.de/krotik/common/stringutil"
	"github.com/dgraph-io/badger/v4"
)

/*
CaseSensitiveWordIndex is a flag to indicate if the index should be case sensitive.
*/
var CaseSensitiveWordIndex = false

/*
PrefixAttrWord is the prefix used for word index entries
*/
const PrefixAttrWord = "\x01"

/*
PrefixAttrHash is the prefix used for hashes of attribute values
*/
const PrefixAttrHash = "\x02"

/*
attrSeparator separates the attribute name from the word or hash
*/
const attrSeparator = "\x00"

/*
IndexManager data structure
*/
type IndexManager struct {
	db *badger.DB // Key-value store which holds this index
}

/*
indexEntry data structure
*/
type indexEntry struct {
	WordPos map[string]string // Node id to word position array
}

/*
NewIndexManager creates a new index manager instance.
*/
func NewIndexManager(db *badger.DB) *IndexManager {
	return &IndexManager{db}
}

/*
Index indexes (inserts) a given object.
*/
func (im *IndexManager) Index(key string, obj map[string]string) error {
	return im.updateIndex(key, obj, nil)
}

/*
Reindex reindexes (updates) a given object.
*/
func (im *IndexManager) Reindex(key string, newObj map[string]string,
	oldObj map[string]string) error {

	return im.updateIndex(key, newObj, oldObj)
}

/*
Deindex deindexes (removes) a given object.
*/
func (im *IndexManager) Deindex(key string, obj map[string]string) error {
	return im.updateIndex(key, nil, obj)
}

/*
LookupPhrase finds all nodes where an attribute contains a certain phrase. This
call returns a sorted list of node keys which contain the phrase at least once.
*/
func (im *IndexManager) LookupPhrase(attr, phrase string) ([]string, error) {
	words := strings.FieldsFunc(phrase, isWordSeparator)

	if len(words) == 0 {
		return nil, nil
	}

	hits := make([]map[string][]uint64, len(words))

	for i, word := range words {
		res, err := im.LookupWord(attr, word)
		if err != nil {
			return nil, err
		} else if len(res) == 0 {
			return nil, nil
		}

		hits[i] = res
	}

	var ret []string

	for key, starts := range hits[0] {
		if containsPhrase(key, starts, hits[1:]) {
			ret = append(ret, key)
		}
	}

	sort.Strings(ret)

	return ret, nil
}

/*
containsPhrase checks if the words which follow the first phrase word occur
at consecutive positions after one of the given start positions.
*/
func containsPhrase(key string, starts []uint64, following []map[string][]uint64) bool {

nextStart:
	for _, start := range starts {
		for i, hit := range following {
			if !hasPosition(hit[key], start+uint64(i)+1) {
				continue nextStart
			}
		}
		return true
	}

	return false
}

/*
hasPosition checks if a sorted position list contains a given position.
*/
func hasPosition(list []uint64, pos uint64) bool {
	i := sort.Search(len(list), func(i int) bool { return list[i] >= pos })
	return i < len(list) && list[i] == pos
}

/*
LookupWord finds all nodes where an attribute contains a certain word. This call returns
a map which maps node key to a list of word positions.
*/
func (im *IndexManager) LookupWord(attr, word string) (map[string][]uint64, error) {
	var ret map[string][]uint64

	err := im.db.View(func(txn *badger.Txn) error {
		entry, err := getIndexEntry(txn, wordKey(attr, normalize(word)))

		if err == nil && entry != nil {
			ret = make(map[string][]uint64)

			for k, l := range entry.WordPos {
				ret[k] = bitutil.UnpackList(l)
			}
		}

		return err
	})

	if err != nil {
		return nil, &GraphError{ErrIndexError, err.Error(), err}
	}

	return ret, nil
}

/*
LookupValue finds all nodes where an attribute has a certain value. This call
returns a list of node keys.
*/
func (im *IndexManager) LookupValue(attr, value string) ([]string, error) {
	var ret []string

	err := im.db.View(func(txn *badger.Txn) error {
		entry, err := getIndexEntry(txn, hashKey(attr, value))

		if err == nil && entry != nil {
			ret = make([]string, 0, len(entry.WordPos))

			for key := range entry.WordPos {
				ret = append(ret, key)
			}

			sort.Strings(ret)
		}

		return err
	})

	if err != nil {
		return nil, &GraphError{ErrIndexError, err.Error(), err}
	}

	return ret, nil
}

/*
Count returns the number of found nodes for a given word in a given attribute.
*/
func (im *IndexManager) Count(attr, word string) (int, error) {
	res, err := im.LookupWord(attr, word)

	return len(res), err
}

/*
updateIndex updates the index for a specific object. Depending on the
new and old arguments being set a given object is either indexed/added
(only new is set), deindexted/removed (only old is set) or reindexted/updated
(new and old are set). All changes are written in a single transaction.
*/
func (im *IndexManager) updateIndex(key string, newObj map[string]string,
	oldObj map[string]string) error {

	attrMap := make(map[string]bool)

	for attr := range newObj {
		attrMap[attr] = true
	}
	for attr := range oldObj {
		attrMap[attr] = true
	}

	err := im.db.Update(func(txn *badger.Txn) error {

		for attr := range attrMap {
			newval, newok := newObj[attr]
			oldval, oldok := oldObj[attr]

			var newwords, oldwords wordPositions

			if newok {
				newwords = extractWords(newval)
			}
			if oldok {
				oldwords = extractWords(oldval)
			}

			// Only the difference between old and new words is written

			for w, p := range oldwords.minus(newwords) {
				if err := removeIndexEntry(txn, key, attr, w, p); err != nil {
					return err
				}
			}

			for w, p := range newwords.minus(oldwords) {
				if err := addIndexEntry(txn, key, attr, w, p); err != nil {
					return err
				}
			}

			// Update hash lookup

			if oldok && (!newok || oldval != newval) {
				if err := removeIndexHashEntry(txn, key, attr, oldval); err != nil {
					return err
				}
			}

			if newok && (!oldok || oldval != newval) {
				if err := addIndexHashEntry(txn, key, attr, newval); err != nil {
					return err
				}
			}
		}

		return nil
	})

	if err != nil {
		return &GraphError{ErrIndexError, err.Error(), err}
	}

	return nil
}

/*
normalize applies the case sensitivity setting to a value.
*/
func normalize(s string) string {
	if CaseSensitiveWordIndex {
		return s
	}
	return strings.ToLower(s)
}

/*
wordKey returns the lookup key of a word entry.
*/
func wordKey(attr string, word string) []byte {
	return []byte(PrefixAttrWord + attr + attrSeparator + word)
}

/*
hashKey returns the lookup key of a hash entry.
*/
func hashKey(attr string, value string) []byte {
	sum := md5.Sum([]byte(normalize(value)))
	return []byte(PrefixAttrHash + attr + attrSeparator + string(sum[:16]))
}

/*
getIndexEntry retrieves an index entry. Returns nil if the entry does not exist.
*/
func getIndexEntry(txn *badger.Txn, indexkey []byte) (*indexEntry, error) {
	item, err := txn.Get(indexkey)

	if err == badger.ErrKeyNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	entry := &indexEntry{}

	err = item.Value(func(val []byte) error {
		return gob.NewDecoder(bytes.NewReader(val)).Decode(entry)
	})

	return entry, err
}

/*
putIndexEntry stores an index entry or removes it if it is empty.
*/
func putIndexEntry(txn *badger.Txn, indexkey []byte, entry *indexEntry) error {
	var buf bytes.Buffer

	if len(entry.WordPos) == 0 {
		return txn.Delete(indexkey)
	}

	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return err
	}

	return txn.Set(indexkey, buf.Bytes())
}

/*
addIndexHashEntry add a hash entry from the index. A hash entry stores a whole
value as MD5 sum.
*/
func addIndexHashEntry(txn *badger.Txn, key string, attr string, value string) error {
	indexkey := hashKey(attr, value)

	entry, err := getIndexEntry(txn, indexkey)
	if err != nil {
		return err
	}

	if entry == nil {
		entry = &indexEntry{make(map[string]string)}
	}

	entry.WordPos[key] = ""

	return putIndexEntry(txn, indexkey, entry)
}

/*
removeIndexHashEntry removes a hash entry from the index. A hash entry stores a whole
value as MD5 sum.
*/
func removeIndexHashEntry(txn *badger.Txn, key string, attr string, value string) error {
	indexkey := hashKey(attr, value)

	entry, err := getIndexEntry(txn, indexkey)
	if err != nil || entry == nil {
		return err
	}

	delete(entry.WordPos, key)

	return putIndexEntry(txn, indexkey, entry)
}

/*
removeIndexEntry removes word positions of a node from the index.
*/
func removeIndexEntry(txn *badger.Txn, key string, attr string, word string, pos []uint64) error {
	indexkey := wordKey(attr, word)

	entry, err := getIndexEntry(txn, indexkey)
	if err != nil || entry == nil {
		return err
	}

	if packed, ok := entry.WordPos[key]; ok {
		setEntryPositions(entry, key, subtractPositions(bitutil.UnpackList(packed), pos))
	}

	return putIndexEntry(txn, indexkey, entry)
}

/*
addIndexEntry adds word positions of a node to the index.
*/
func addIndexEntry(txn *badger.Txn, key string, attr string, word string, pos []uint64) error {
	indexkey := wordKey(attr, word)

	entry, err := getIndexEntry(txn, indexkey)
	if err != nil {
		return err
	}

	if entry == nil {
		entry = &indexEntry{make(map[string]string)}
	}

	if packed, ok := entry.WordPos[key]; ok {
		pos = mergePositions(bitutil.UnpackList(packed), pos)
	}

	setEntryPositions(entry, key, pos)

	return putIndexEntry(txn, indexkey, entry)
}

/*
setEntryPositions stores the sorted positions of a node in an index entry.
Empty position lists remove the node from the entry.
*/
func setEntryPositions(entry *indexEntry, key string, pos []uint64) {
	if len(pos) == 0 {
		delete(entry.WordPos, key)
		return
	}

	entry.WordPos[key] = bitutil.PackList(pos, pos[len(pos)-1])
}

/*
mergePositions returns the sorted union of two position lists.
*/
func mergePositions(a []uint64, b []uint64) []uint64 {
	all := append(append(make([]uint64, 0, len(a)+len(b)), a...), b...)
	sortutil.UInt64s(all)

	ret := all[:0]

	for i, p := range all {
		if i == 0 || p != all[i-1] {
			ret = append(ret, p)
		}
	}

	return ret
}

/*
subtractPositions returns all positions of a which are not in b.
*/
func subtractPositions(a []uint64, b []uint64) []uint64 {
	ret := make([]uint64, 0, len(a))

	for _, p := range a {
		if !hasPosition(b, p) {
			ret = append(ret, p)
		}
	}

	return ret
}

/*
String returns a string representation of this index manager.
*/
func (im *IndexManager) String() string {
	var buf bytes.Buffer

	buf.WriteString("IndexManager:\n")

	im.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)

			entry, err := getIndexEntry(txn, key)
			if err != nil {
				return err
			}

			posmap := make(map[string][]uint64)
			for k, v := range entry.WordPos {
				posmap[k] = bitutil.UnpackList(v)
			}

			parts := strings.SplitN(string(key[1:]), attrSeparator, 2)

			if key[0] == PrefixAttrHash[0] {
				parts[1] = fmt.Sprintf("%x", parts[1])
			}

			buf.WriteString(fmt.Sprintf("    %v %v %q %v\n", key[0], parts[0], parts[1], posmap))
		}

		return nil
	})

	return buf.String()
}

/*
isWordSeparator checks if a rune separates words.
*/
func isWordSeparator(r rune) bool {
	return !stringutil.IsAlphaNumeric(string(r)) &&
		(unicode.IsSpace(r) || unicode.IsControl(r) || unicode.IsPunct(r))
}

/*
wordPositions maps words to their sorted positions in a text. Positions start
at 1.
*/
type wordPositions map[string][]uint64

/*
extractWords splits a text into words and records the position of every word.
*/
func extractWords(s string) wordPositions {
	ret := make(wordPositions)

	for i, word := range strings.FieldsFunc(normalize(s), isWordSeparator) {
		ret.add(word, uint64(i+1))
	}

	return ret
}

/*
add adds a word position.
*/
func (wp wordPositions) add(word string, pos uint64) {
	wp[word] = mergePositions(wp[word], []uint64{pos})
}

/*
minus returns all word positions which are not in another set.
*/
func (wp wordPositions) minus(other wordPositions) wordPositions {
	ret := make(wordPositions)

	for word, pos := range wp {
		if rest := subtractPositions(pos, other[word]); len(rest) > 0 {
			ret[word] = rest
		}
	}

	return ret
}

/*
String returns the words and positions in alphabetical order.
*/
func (wp wordPositions) String() string {
	words := make([]string, 0, len(wp))

	for word := range wp {
		words = append(words, word)
	}

	sort.Strings(words)

	var buf bytes.Buffer

	for _, word := range words {
		fmt.Fprintf(&buf, "%v:%v ", word, wp[word])
	}

	return strings.TrimSpace(buf.String())
}
