package stanza

// NSEME is XEP-0380 Explicit Message Encryption.
const NSEME = "urn:xmpp:eme:0"

// EME builds the <encryption/> hint naming the mechanism used for a message.
func EME(namespace, name string) Element {
	return NewElement(NSEME, "encryption", "", "namespace", namespace, "name", name)
}
