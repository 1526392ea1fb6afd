package constants

// Encryption and key derivation
const (
	EncryptionTypeAES  = "aes"
	EncryptionTypeNone = "none"

	AESModeCBC = "cbc"

	KDFScrypt = "scrypt"
	KDFPBKDF2 = "pbkdf2"

	// KeyDerivationSalt and KeyDerivationIterations are fixed so that the same
	// password always reproduces the backup-time key on restore.
	KeyDerivationSalt       = "backup_restore_key_mgmt_salt"
	KeyWrapSalt             = "backup_restore_key_wrap_salt"
	KeyDerivationIterations = 65536
	KeySize                 = 32

	DefaultScryptN = 32768
	DefaultScryptR = 8
	DefaultScryptP = 1
)

// Hash algorithms
const (
	HashAlgorithmSHA256 = "sha256"
	HashAlgorithmSHA512 = "sha512"
	HashAlgorithmSHA1   = "sha1"
	HashAlgorithmMD5    = "md5"
	HashAlgorithmBLAKE3 = "blake3"
)

// Artifact names inside the backup, key and manifest directories
const (
	FinalArchiveName     = "backup.zip"
	ManifestFileName     = "hashes.json"
	KeyFileName          = "backup.key"
	TempArchivePrefix    = "temp_"
	TempArchiveExtension = ".zip"
	PartialSuffix        = ".partial"
)

// Run defaults
const (
	DefaultChunkSize          = 20
	DefaultSpaceMarginPercent = 5.0
	DefaultProgressInterval   = "5s"
)

// File permissions
const (
	SecureDirPerms    = 0o700 // Owner read/write/execute only
	SecureFilePerms   = 0o600 // Owner read/write only
	StandardDirPerms  = 0o755 // Standard directory permissions
	StandardFilePerms = 0o644 // Standard file permissions
)
