package cache

import (
	"sync"
	"testing"
)

func TestCache_UserMapping(t *testing.T) {
	c := New()

	c.PutUser(123456789, "u_abc")

	if uid, ok := c.UidByUin(123456789); !ok || uid != "u_abc" {
		t.Errorf("UidByUin = %q, %v; want u_abc, true", uid, ok)
	}
	if uin, ok := c.UinByUid("u_abc"); !ok || uin != 123456789 {
		t.Errorf("UinByUid = %d, %v; want 123456789, true", uin, ok)
	}
	if _, ok := c.UidByUin(42); ok {
		t.Error("UidByUin found an entry that was never stored")
	}
}

func TestCache_IgnoresEmptyPairs(t *testing.T) {
	c := New()

	c.PutUser(0, "u_abc")
	c.PutUser(123, "")

	if _, ok := c.UinByUid("u_abc"); ok {
		t.Error("zero uin was stored")
	}
	if _, ok := c.UidByUin(123); ok {
		t.Error("empty uid was stored")
	}
}

func TestCache_Cookies(t *testing.T) {
	c := New()

	c.SetCookie("qun.qq.com", []byte("cookie-bytes"))
	if v, ok := c.Cookie("qun.qq.com"); !ok || string(v) != "cookie-bytes" {
		t.Errorf("Cookie = %q, %v", v, ok)
	}
	if _, ok := c.Cookie("docs.qq.com"); ok {
		t.Error("Cookie found a domain that was never stored")
	}
}

func TestCache_Clear(t *testing.T) {
	c := New()
	c.PutUser(1, "u_1")
	c.SetCookie("d", []byte("v"))

	c.Clear()

	if _, ok := c.UidByUin(1); ok {
		t.Error("user mapping survived Clear")
	}
	if _, ok := c.Cookie("d"); ok {
		t.Error("cookie survived Clear")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			uin := uint64(i + 1)
			c.PutUser(uin, "u")
			c.UidByUin(uin)
			c.SetCookie("d", []byte{byte(i)})
			c.Cookie("d")
		}()
	}
	wg.Wait()
}
