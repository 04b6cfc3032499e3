// Package adi drives the Apple Device Identity entrypoints inside
// libstoreservicescore.so/libCoreADI.so through the emulator, presenting
// them as a small Go API instead of raw cdecl invocations.
package adi

import (
	"github.com/libanisette/anisette-go/internal/emulator"
	"github.com/libanisette/anisette-go/internal/log"
	_ "github.com/libanisette/anisette-go/internal/stubs/all"
	"github.com/libanisette/anisette-go/internal/vmerr"
)

// loginCodeNotProvisioned is ADIGetLoginCode's result when no identity has
// ever been provisioned on this machine.
const loginCodeNotProvisioned = -45061

// Apple's Android-facing build ships the real ADI entrypoints behind these
// obfuscated exported names. The mapping never changes across releases of
// the same library, so it's safe to hardcode.
const (
	symLoadLibraryWithPath = "kq56gsgHG6"
	symSetAndroidID        = "Sph98paBcz"
	symSetProvisioningPath = "nf92ngaK92"
	symGetLoginCode        = "aslgmuibau"
	symProvisioningStart   = "rsegvyrt87"
	symProvisioningEnd     = "uv5t6nhkui"
	symOTPRequest          = "qi864985u0"
)

// Config holds everything needed to stand up an Adi instance.
type Config struct {
	StoreServicesCore []byte
	CoreADI           []byte
	LibraryPath       string
	ProvisioningPath  string
	Identifier        string
}

// ProvisioningStart is the result of starting the two-step provisioning
// handshake: cpim is handed to Apple's GSA provisioning service, and
// Session must be threaded back into EndProvisioning.
type ProvisioningStart struct {
	CPIM    []byte
	Session uint32
}

// OTP is a one-time-password/machine-ID pair good for a single Anisette
// header set.
type OTP struct {
	OTP       []byte
	MachineID []byte
}

// Adi wraps a running Emulator with resolved entrypoints into
// libstoreservicescore.so.
type Adi struct {
	emu *emulator.Emulator

	pLoadLibraryWithPath uint64
	pSetAndroidID        uint64
	pSetProvisioningPath uint64
	pGetLoginCode        uint64
	pProvisioningStart   uint64
	pProvisioningEnd     uint64
	pOTPRequest          uint64
}

// New constructs an Adi: it starts a fresh Unicorn emulator, loads
// libstoreservicescore.so, resolves every entrypoint this package calls,
// and runs ADILoadLibraryWithPath so the library can find libCoreADI.so.
func New(logger *log.Logger, cfg Config) (*Adi, error) {
	emu, err := emulator.New(logger)
	if err != nil {
		return nil, err
	}
	emu.SetLibraryRoot(cfg.LibraryPath)
	emu.RegisterLibraryBlob("libstoreservicescore.so", cfg.StoreServicesCore)
	emu.RegisterLibraryBlob("libCoreADI.so", cfg.CoreADI)

	idx, err := emu.LoadLibrary("libstoreservicescore.so")
	if err != nil {
		return nil, err
	}

	a := &Adi{emu: emu}
	for _, sym := range []struct {
		name string
		dst  *uint64
	}{
		{symLoadLibraryWithPath, &a.pLoadLibraryWithPath},
		{symSetAndroidID, &a.pSetAndroidID},
		{symSetProvisioningPath, &a.pSetProvisioningPath},
		{symGetLoginCode, &a.pGetLoginCode},
		{symProvisioningStart, &a.pProvisioningStart},
		{symProvisioningEnd, &a.pProvisioningEnd},
		{symOTPRequest, &a.pOTPRequest},
	} {
		addr, err := emu.ResolveSymbolByName(idx, sym.name)
		if err != nil {
			return nil, err
		}
		*sym.dst = addr
	}

	if err := a.loadLibraryWithPath(cfg.LibraryPath); err != nil {
		return nil, err
	}
	if cfg.ProvisioningPath != "" {
		if err := a.SetProvisioningPath(cfg.ProvisioningPath); err != nil {
			return nil, err
		}
	}
	if cfg.Identifier != "" {
		if err := a.SetIdentifier(cfg.Identifier); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Adi) loadLibraryWithPath(path string) error {
	pPath, err := a.emu.AllocData(append([]byte(path), 0))
	if err != nil {
		return err
	}
	ret, err := a.emu.InvokeCdecl(a.pLoadLibraryWithPath, []uint64{pPath})
	if err != nil {
		return err
	}
	return ensureZeroReturn("ADILoadLibraryWithPath", ret)
}

// SetIdentifier sets the Android ID string the library reports back to
// Apple. An empty identifier is a no-op, matching how callers signal "use
// whatever's already configured."
func (a *Adi) SetIdentifier(identifier string) error {
	if identifier == "" {
		return nil
	}
	bytes := []byte(identifier)
	pIdentifier, err := a.emu.AllocData(bytes)
	if err != nil {
		return err
	}
	ret, err := a.emu.InvokeCdecl(a.pSetAndroidID, []uint64{pIdentifier, uint64(len(bytes))})
	if err != nil {
		return err
	}
	return ensureZeroReturn("ADISetAndroidID", ret)
}

// SetProvisioningPath points the library at the directory it should persist
// its provisioning state under.
func (a *Adi) SetProvisioningPath(path string) error {
	pPath, err := a.emu.AllocData(append([]byte(path), 0))
	if err != nil {
		return err
	}
	ret, err := a.emu.InvokeCdecl(a.pSetProvisioningPath, []uint64{pPath})
	if err != nil {
		return err
	}
	return ensureZeroReturn("ADISetProvisioningPath", ret)
}

// IsMachineProvisioned reports whether dsid already has a provisioned
// identity on this machine.
func (a *Adi) IsMachineProvisioned(dsid uint64) (bool, error) {
	ret, err := a.emu.InvokeCdecl(a.pGetLoginCode, []uint64{dsid})
	if err != nil {
		return false, err
	}
	code := int32(uint32(ret))
	switch code {
	case 0:
		return true, nil
	case loginCodeNotProvisioned:
		return false, nil
	default:
		return false, &vmerr.AdiCallFailed{Name: "ADIGetLoginCode", Code: code}
	}
}

// StartProvisioning begins the GSA provisioning handshake for dsid using
// the server-supplied intermediate metadata blob.
func (a *Adi) StartProvisioning(dsid uint64, spim []byte) (*ProvisioningStart, error) {
	pCpim, err := a.emu.AllocTemporary(8)
	if err != nil {
		return nil, err
	}
	pCpimLen, err := a.emu.AllocTemporary(4)
	if err != nil {
		return nil, err
	}
	pSession, err := a.emu.AllocTemporary(4)
	if err != nil {
		return nil, err
	}
	pSpim, err := a.emu.AllocData(spim)
	if err != nil {
		return nil, err
	}

	ret, err := a.emu.InvokeCdecl(a.pProvisioningStart, []uint64{
		dsid, pSpim, uint64(len(spim)), pCpim, pCpimLen, pSession,
	})
	if err != nil {
		return nil, err
	}
	if err := ensureZeroReturn("ADIProvisioningStart", ret); err != nil {
		return nil, err
	}

	cpimPtr, err := a.emu.MemReadU64(pCpim)
	if err != nil {
		return nil, err
	}
	cpimLen, err := a.emu.MemReadU32(pCpimLen)
	if err != nil {
		return nil, err
	}
	cpim, err := a.emu.MemRead(cpimPtr, uint64(cpimLen))
	if err != nil {
		return nil, err
	}
	session, err := a.emu.MemReadU32(pSession)
	if err != nil {
		return nil, err
	}

	return &ProvisioningStart{CPIM: cpim, Session: session}, nil
}

// EndProvisioning completes the handshake StartProvisioning began, feeding
// back the server's persistent token metadata and the resulting trust key.
func (a *Adi) EndProvisioning(session uint32, persistentTokenMetadata, trustKey []byte) error {
	pPTM, err := a.emu.AllocData(persistentTokenMetadata)
	if err != nil {
		return err
	}
	pTK, err := a.emu.AllocData(trustKey)
	if err != nil {
		return err
	}

	ret, err := a.emu.InvokeCdecl(a.pProvisioningEnd, []uint64{
		uint64(session), pPTM, uint64(len(persistentTokenMetadata)), pTK, uint64(len(trustKey)),
	})
	if err != nil {
		return err
	}
	return ensureZeroReturn("ADIProvisioningEnd", ret)
}

// RequestOTP produces a fresh one-time-password and machine ID pair for
// dsid. The machine must already be provisioned.
func (a *Adi) RequestOTP(dsid uint64) (*OTP, error) {
	pOtp, err := a.emu.AllocTemporary(8)
	if err != nil {
		return nil, err
	}
	pOtpLen, err := a.emu.AllocTemporary(4)
	if err != nil {
		return nil, err
	}
	pMid, err := a.emu.AllocTemporary(8)
	if err != nil {
		return nil, err
	}
	pMidLen, err := a.emu.AllocTemporary(4)
	if err != nil {
		return nil, err
	}

	ret, err := a.emu.InvokeCdecl(a.pOTPRequest, []uint64{dsid, pMid, pMidLen, pOtp, pOtpLen})
	if err != nil {
		return nil, err
	}
	if err := ensureZeroReturn("ADIOTPRequest", ret); err != nil {
		return nil, err
	}

	otpPtr, err := a.emu.MemReadU64(pOtp)
	if err != nil {
		return nil, err
	}
	otpLen, err := a.emu.MemReadU32(pOtpLen)
	if err != nil {
		return nil, err
	}
	otp, err := a.emu.MemRead(otpPtr, uint64(otpLen))
	if err != nil {
		return nil, err
	}

	midPtr, err := a.emu.MemReadU64(pMid)
	if err != nil {
		return nil, err
	}
	midLen, err := a.emu.MemReadU32(pMidLen)
	if err != nil {
		return nil, err
	}
	machineID, err := a.emu.MemRead(midPtr, uint64(midLen))
	if err != nil {
		return nil, err
	}

	return &OTP{OTP: otp, MachineID: machineID}, nil
}

// Close releases the underlying emulator.
func (a *Adi) Close() error {
	return a.emu.Close()
}

func ensureZeroReturn(name string, ret uint64) error {
	code := int32(uint32(ret))
	if code == 0 {
		return nil
	}
	return &vmerr.AdiCallFailed{Name: name, Code: code}
}
