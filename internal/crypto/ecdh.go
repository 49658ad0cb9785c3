package crypto

import (
	"crypto/md5"
	"crypto/rand"
	"math/big"

	"github.com/nanoim/botcore/internal/errs"
)

// Curve holds the domain parameters of a short Weierstrass curve
// y^2 = x^3 + ax + b over GF(p). secp192k1 is a Koblitz curve with a = 0,
// which rules out the standard-library curve types (they hard-code a = -3),
// so point arithmetic is done here in affine coordinates.
type Curve struct {
	Name string
	P    *big.Int
	A    *big.Int
	B    *big.Int
	Gx   *big.Int
	Gy   *big.Int
	N    *big.Int
	// Size is the byte width of one coordinate.
	Size int
}

func mustHex(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("crypto: bad curve constant")
	}
	return v
}

// Secp192K1 is the curve used for the wt-login ECDH exchange.
var Secp192K1 = &Curve{
	Name: "secp192k1",
	P:    mustHex("fffffffffffffffffffffffffffffffffffffffeffffee37"),
	A:    big.NewInt(0),
	B:    big.NewInt(3),
	Gx:   mustHex("db4ff10ec057e9ae26b07d0280b7f4341da5d1b1eae06c7d"),
	Gy:   mustHex("9b2f2f6d9c5628a7844163d015be86344082aa88d95e2f9d"),
	N:    mustHex("fffffffffffffffffffffffe26f2fc170f69466a74defd8d"),
	Size: 24,
}

// Prime256V1 is the curve used for the session key exchange.
var Prime256V1 = &Curve{
	Name: "prime256v1",
	P:    mustHex("ffffffff00000001000000000000000000000000ffffffffffffffffffffffff"),
	A:    mustHex("ffffffff00000001000000000000000000000000fffffffffffffffffffffffc"),
	B:    mustHex("5ac635d8aa3a93e7b3ebbd55769886bc651d06b0cc53b0f63bce3c3e27d2604b"),
	Gx:   mustHex("6b17d1f2e12c4247f8bce6e563a440f277037d812deb33a0f4a13945d898c296"),
	Gy:   mustHex("4fe342e2fe1a7f9b8ee7eb4a7c0f9e162bce33576b315ececbb6406837bf51f5"),
	N:    mustHex("ffffffff00000000ffffffffffffffffbce6faada7179e84f3b9cac2fc632551"),
	Size: 32,
}

// Point is an affine curve point. The identity is represented by X = Y = nil.
type Point struct {
	X, Y *big.Int
}

// IsIdentity reports whether the point is the point at infinity.
func (p Point) IsIdentity() bool { return p.X == nil }

// onCurve checks y^2 == x^3 + ax + b (mod p).
func (c *Curve) onCurve(p Point) bool {
	if p.IsIdentity() {
		return false
	}
	left := new(big.Int).Mul(p.Y, p.Y)
	left.Mod(left, c.P)
	right := new(big.Int).Mul(p.X, p.X)
	right.Mul(right, p.X)
	right.Add(right, new(big.Int).Mul(c.A, p.X))
	right.Add(right, c.B)
	right.Mod(right, c.P)
	return left.Cmp(right) == 0
}

func (c *Curve) add(p, q Point) Point {
	if p.IsIdentity() {
		return q
	}
	if q.IsIdentity() {
		return p
	}
	if p.X.Cmp(q.X) == 0 {
		if p.Y.Cmp(q.Y) != 0 || p.Y.Sign() == 0 {
			return Point{} // p + (-p) = identity
		}
		return c.double(p)
	}

	// lambda = (y2 - y1) / (x2 - x1)
	num := new(big.Int).Sub(q.Y, p.Y)
	den := new(big.Int).Sub(q.X, p.X)
	den.ModInverse(den, c.P)
	lambda := num.Mul(num, den)
	lambda.Mod(lambda, c.P)

	x := new(big.Int).Mul(lambda, lambda)
	x.Sub(x, p.X)
	x.Sub(x, q.X)
	x.Mod(x, c.P)

	y := new(big.Int).Sub(p.X, x)
	y.Mul(y, lambda)
	y.Sub(y, p.Y)
	y.Mod(y, c.P)

	return Point{X: x, Y: y}
}

func (c *Curve) double(p Point) Point {
	if p.IsIdentity() || p.Y.Sign() == 0 {
		return Point{}
	}

	// lambda = (3x^2 + a) / 2y
	num := new(big.Int).Mul(p.X, p.X)
	num.Mul(num, big.NewInt(3))
	num.Add(num, c.A)
	den := new(big.Int).Lsh(p.Y, 1)
	den.ModInverse(den, c.P)
	lambda := num.Mul(num, den)
	lambda.Mod(lambda, c.P)

	x := new(big.Int).Mul(lambda, lambda)
	x.Sub(x, new(big.Int).Lsh(p.X, 1))
	x.Mod(x, c.P)

	y := new(big.Int).Sub(p.X, x)
	y.Mul(y, lambda)
	y.Sub(y, p.Y)
	y.Mod(y, c.P)

	return Point{X: x, Y: y}
}

// scalarMult computes k * p by double-and-add from the most significant bit.
func (c *Curve) scalarMult(p Point, k *big.Int) Point {
	acc := Point{}
	for i := k.BitLen() - 1; i >= 0; i-- {
		acc = c.double(acc)
		if k.Bit(i) == 1 {
			acc = c.add(acc, p)
		}
	}
	return acc
}

func (c *Curve) coord(v *big.Int) []byte {
	return v.FillBytes(make([]byte, c.Size))
}

// PackPoint serializes a point in SEC1 form: 0x04||X||Y uncompressed, or
// 0x02/0x03||X compressed with the parity of Y in the type byte.
func (c *Curve) PackPoint(p Point, compressed bool) []byte {
	if compressed {
		out := make([]byte, 0, 1+c.Size)
		if p.Y.Bit(0) == 1 {
			out = append(out, 0x03)
		} else {
			out = append(out, 0x02)
		}
		return append(out, c.coord(p.X)...)
	}
	out := make([]byte, 0, 1+2*c.Size)
	out = append(out, 0x04)
	out = append(out, c.coord(p.X)...)
	return append(out, c.coord(p.Y)...)
}

// UnpackPoint parses a SEC1 compressed or uncompressed encoding and checks
// the point is on the curve.
func (c *Curve) UnpackPoint(data []byte) (Point, error) {
	if len(data) == 0 {
		return Point{}, errs.Crypto("empty point encoding")
	}
	switch data[0] {
	case 0x04:
		if len(data) != 1+2*c.Size {
			return Point{}, errs.Crypto("%s: uncompressed point length %d", c.Name, len(data))
		}
		p := Point{
			X: new(big.Int).SetBytes(data[1 : 1+c.Size]),
			Y: new(big.Int).SetBytes(data[1+c.Size:]),
		}
		if !c.onCurve(p) {
			return Point{}, errs.Crypto("%s: point not on curve", c.Name)
		}
		return p, nil
	case 0x02, 0x03:
		if len(data) != 1+c.Size {
			return Point{}, errs.Crypto("%s: compressed point length %d", c.Name, len(data))
		}
		x := new(big.Int).SetBytes(data[1:])
		// y^2 = x^3 + ax + b; both supported primes are 3 mod 4, so the
		// root is a single modular exponentiation.
		y2 := new(big.Int).Mul(x, x)
		y2.Mul(y2, x)
		y2.Add(y2, new(big.Int).Mul(c.A, x))
		y2.Add(y2, c.B)
		y2.Mod(y2, c.P)
		exp := new(big.Int).Add(c.P, big.NewInt(1))
		exp.Rsh(exp, 2)
		y := new(big.Int).Exp(y2, exp, c.P)
		if new(big.Int).Exp(y, big.NewInt(2), c.P).Cmp(y2) != 0 {
			return Point{}, errs.Crypto("%s: x has no square root", c.Name)
		}
		if y.Bit(0) != uint(data[0]&1) {
			y.Sub(c.P, y)
		}
		p := Point{X: x, Y: y}
		if !c.onCurve(p) {
			return Point{}, errs.Crypto("%s: point not on curve", c.Name)
		}
		return p, nil
	default:
		return Point{}, errs.Crypto("%s: unknown point format %#x", c.Name, data[0])
	}
}

// ECDHKey is an ephemeral keypair bound to one curve.
type ECDHKey struct {
	curve *Curve
	priv  *big.Int
	pub   Point
}

// GenerateECDHKey generates a fresh keypair on c.
func GenerateECDHKey(c *Curve) (*ECDHKey, error) {
	for {
		buf := make([]byte, c.Size)
		if _, err := rand.Read(buf); err != nil {
			return nil, errs.Crypto("ecdh keygen: %v", err)
		}
		k := new(big.Int).SetBytes(buf)
		k.Mod(k, c.N)
		if k.Sign() == 0 {
			continue
		}
		return &ECDHKey{
			curve: c,
			priv:  k,
			pub:   c.scalarMult(Point{X: c.Gx, Y: c.Gy}, k),
		}, nil
	}
}

// Curve returns the curve this key lives on.
func (k *ECDHKey) Curve() *Curve { return k.curve }

// PublicBytes serializes the public point.
func (k *ECDHKey) PublicBytes(compressed bool) []byte {
	return k.curve.PackPoint(k.pub, compressed)
}

// SharedKey performs the key agreement against a SEC1-encoded peer public
// key. With hashed set, it returns the MD5 digest of the x-coordinate
// (16 bytes, the TEA key shape); otherwise the raw x-coordinate.
func (k *ECDHKey) SharedKey(peerPublic []byte, hashed bool) ([]byte, error) {
	peer, err := k.curve.UnpackPoint(peerPublic)
	if err != nil {
		return nil, err
	}
	shared := k.curve.scalarMult(peer, k.priv)
	if shared.IsIdentity() {
		return nil, errs.Crypto("%s: degenerate shared point", k.curve.Name)
	}
	x := k.curve.coord(shared.X)
	if !hashed {
		return x, nil
	}
	sum := md5.Sum(x)
	return sum[:], nil
}
