package signer

import (
	"encoding/binary"

	"github.com/coresig/signer/bulletin"
	"github.com/coresig/signer/crypto"
)

// packetSigningBytes canonicalizes the fields of a PacketEnvelope that must
// be authenticated: the sender's claimed identity and chain view, plus the
// inner protocol message. It deliberately excludes the envelope's own
// Signature field.
func packetSigningBytes(pe *bulletin.PacketEnvelope) []byte {
	var buf []byte
	var idBuf [4]byte
	binary.BigEndian.PutUint32(idBuf[:], pe.SenderID)
	buf = append(buf, idBuf[:]...)
	buf = append(buf, []byte(pe.SenderMetadata.PoxConsensusHash)...)
	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], pe.SenderMetadata.BurnBlockHeight)
	buf = append(buf, heightBuf[:]...)
	var kindBuf [4]byte
	binary.BigEndian.PutUint32(kindBuf[:], uint32(pe.Packet.Msg.Kind))
	buf = append(buf, kindBuf[:]...)
	buf = append(buf, pe.Packet.Msg.Payload...)
	buf = append(buf, pe.Packet.Msg.Raw...)
	return buf
}

// signPacketEnvelope signs pe's authenticated content with priv, setting
// pe.Signature in place.
func signPacketEnvelope(priv crypto.PrivateKey, pe *bulletin.PacketEnvelope) {
	pe.Signature = []byte(crypto.Sign(priv, packetSigningBytes(pe)))
}

// verifyPacketEnvelope checks pe.Signature against pub over pe's
// authenticated content.
func verifyPacketEnvelope(pub crypto.PublicKey, pe *bulletin.PacketEnvelope) bool {
	if len(pe.Signature) == 0 {
		return false
	}
	return crypto.Verify(pub, packetSigningBytes(pe), string(pe.Signature)) == nil
}
