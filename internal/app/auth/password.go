package auth

import "golang.org/x/crypto/bcrypt"

// cost is lowered in tests.
var cost = bcrypt.DefaultCost

func HashPassword(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword is false for any mismatch or malformed hash.
func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
