// Package crypto provides the key handling and memory hygiene shared by every
// layer of noisemobile.
//
// The package does not implement any cipher. Handshake and transport
// cryptography live in the noise package, which delegates to the flynn/noise
// library. What lives here is the material around it:
//
//   - [KeyPair]: Curve25519 static identity, generated or derived from a
//     caller-supplied 32-byte private key
//   - [SecureWipe], [ZeroBytes], [WipeKeyPair]: best-effort zeroing of
//     sensitive buffers before they are released
//   - [KeyStorage]: identity and session-state persistence, with an in-memory
//     implementation for tests and an encrypted file-backed implementation
//   - [TimeProvider]: injectable clock used by the batch scheduler
//   - [LoggerHelper]: structured logrus fields shared across packages
//
// # Key Generation
//
//	keyPair, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer crypto.WipeKeyPair(keyPair)
//
//	// Derive the public half from an existing private key
//	keyPair, err = crypto.FromSecretKey(secret)
//
// # Key Storage
//
// Platform keychains are outside this module. Hosts that want persistence
// without one can use [EncryptedKeyStore], which seals each record with
// ChaCha20-Poly1305 under a PBKDF2-derived key:
//
//	ks, err := crypto.NewEncryptedKeyStore(dir, []byte(passphrase))
//	if err != nil {
//	    return err
//	}
//	defer ks.Close()
//	err = ks.StoreIdentity(keyPair.Private[:], "default")
//
// # Logging
//
// Sensitive data is never logged in full. [SecureFieldHash] produces an
// 8-byte preview and size suitable for debug output.
package crypto
