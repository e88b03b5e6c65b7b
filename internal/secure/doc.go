// Package secure keeps credentials that outlive a single request, such as
// the database password embedded in the SQL connection string, encrypted
// in memory with memguard.
//
// A Secret is created once at engine construction and opened only for the
// duration of a dial:
//
//	pw := secure.NewSecret([]byte(password))
//	defer pw.Destroy()
//
//	err := pw.With(func(plain []byte) error {
//	    cfg.Passwd = string(plain)
//	    return nil
//	})
//
// Opened buffers are wiped as soon as the callback returns. Copies made by
// the callback (for example into a driver config) are outside this package's
// control.
package secure
