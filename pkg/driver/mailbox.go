package driver

import (
	flexcan "github.com/flexcan-go/flexcan"
)

// Mailbox access primitives. Each mailbox occupies four consecutive words
// in controller RAM : CS, ID, DATA0, DATA1. Payload bytes are packed big
// endian within each data word (byte 0 is the most significant byte of
// DATA0, byte 4 the most significant byte of DATA1) to match the physical
// CAN frame bit ordering.

func readMbCS(regs flexcan.RegisterBank, mbIndex uint8) uint32 {
	return regs.Read(flexcan.MBOffset(mbIndex))
}

func writeMbCS(regs flexcan.RegisterBank, mbIndex uint8, cs uint32) {
	regs.Write(flexcan.MBOffset(mbIndex), cs)
}

func readMbID(regs flexcan.RegisterBank, mbIndex uint8) uint32 {
	return regs.Read(flexcan.MBOffset(mbIndex) + 4)
}

func writeMbID(regs flexcan.RegisterBank, mbIndex uint8, id uint32) {
	regs.Write(flexcan.MBOffset(mbIndex)+4, id)
}

// packDataWords packs 8 payload bytes into the two big endian data words.
func packDataWords(data [flexcan.MaxDataLength]byte) (word0 uint32, word1 uint32) {
	word0 = uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	word1 = uint32(data[4])<<24 | uint32(data[5])<<16 | uint32(data[6])<<8 | uint32(data[7])
	return word0, word1
}

// unpackDataWords is the inverse of packDataWords.
func unpackDataWords(word0 uint32, word1 uint32) (data [flexcan.MaxDataLength]byte) {
	data[0] = byte(word0 >> 24)
	data[1] = byte(word0 >> 16)
	data[2] = byte(word0 >> 8)
	data[3] = byte(word0)
	data[4] = byte(word1 >> 24)
	data[5] = byte(word1 >> 16)
	data[6] = byte(word1 >> 8)
	data[7] = byte(word1)
	return data
}

func writeMbData(regs flexcan.RegisterBank, mbIndex uint8, data [flexcan.MaxDataLength]byte) {
	word0, word1 := packDataWords(data)
	regs.Write(flexcan.MBOffset(mbIndex)+8, word0)
	regs.Write(flexcan.MBOffset(mbIndex)+12, word1)
}

func readMbData(regs flexcan.RegisterBank, mbIndex uint8) [flexcan.MaxDataLength]byte {
	word0 := regs.Read(flexcan.MBOffset(mbIndex) + 8)
	word1 := regs.Read(flexcan.MBOffset(mbIndex) + 12)
	return unpackDataWords(word0, word1)
}

// encodeID builds a mailbox ID word. Standard identifiers occupy bits
// 18-28, extended identifiers bits 0-28.
func encodeID(id uint32, idType flexcan.IDType) uint32 {
	if idType == flexcan.IDExtended {
		return (id << flexcan.IDExtShift) & flexcan.IDExtMask
	}
	return (id << flexcan.IDStdShift) & flexcan.IDStdMask
}

// decodeID extracts the identifier and its type from a CS/ID word pair.
func decodeID(cs uint32, idWord uint32) (uint32, flexcan.IDType) {
	if cs&flexcan.CS_IDE != 0 {
		return (idWord & flexcan.IDExtMask) >> flexcan.IDExtShift, flexcan.IDExtended
	}
	return (idWord & flexcan.IDStdMask) >> flexcan.IDStdShift, flexcan.IDStandard
}
