package openrtb_ext

import (
	"encoding/json"
	"errors"

	"github.com/prebid/openrtb/v20/openrtb2"
)

// RequestWrapper wraps the OpenRTB request to provide a storage location for
// unmarshalled ext fields, so they will not need to be unmarshalled multiple
// times. Ext objects are parsed lazily on first access and written back to
// the request JSON by the Rebuild methods.
//
// NOTE: The RequestWrapper methods (particularly the ones calling (un)Marshal) are not thread safe.
type RequestWrapper struct {
	*openrtb2.BidRequest
	imp         []*ImpWrapper
	impAccessed bool
	requestExt  *RequestExt
}

func (rw *RequestWrapper) GetImp() []*ImpWrapper {
	if rw.impAccessed {
		return rw.imp
	}

	rw.impAccessed = true
	if rw.BidRequest == nil {
		return nil
	}

	rw.imp = make([]*ImpWrapper, len(rw.Imp))
	for i := range rw.Imp {
		rw.imp[i] = &ImpWrapper{Imp: &rw.Imp[i]}
	}
	return rw.imp
}

func (rw *RequestWrapper) LenImp() int {
	if rw.impAccessed {
		return len(rw.imp)
	}
	return len(rw.Imp)
}

func (rw *RequestWrapper) GetRequestExt() (*RequestExt, error) {
	if rw.requestExt != nil {
		return rw.requestExt, nil
	}
	rw.requestExt = &RequestExt{}
	if rw.BidRequest == nil || rw.Ext == nil {
		return rw.requestExt, rw.requestExt.unmarshal(json.RawMessage{})
	}
	return rw.requestExt, rw.requestExt.unmarshal(rw.Ext)
}

// RebuildRequest syncs all dirty ext objects back into the wrapped request.
func (rw *RequestWrapper) RebuildRequest() error {
	if rw.BidRequest == nil {
		return errors.New("Requestwrapper Sync called on a nil BidRequest")
	}

	if err := rw.RebuildImp(); err != nil {
		return err
	}
	return rw.RebuildRequestExt()
}

func (rw *RequestWrapper) RebuildRequestExt() error {
	if rw.requestExt == nil || !rw.requestExt.Dirty() {
		return nil
	}

	requestJson, err := rw.requestExt.marshal()
	if err != nil {
		return err
	}
	rw.Ext = requestJson
	return nil
}

func (rw *RequestWrapper) RebuildImp() error {
	if !rw.impAccessed {
		return nil
	}

	for _, iw := range rw.imp {
		if err := iw.RebuildImp(); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------
// RequestExt provides an interface for request.ext
// ---------------------------------------------------------------

type RequestExt struct {
	ext         map[string]json.RawMessage
	extDirty    bool
	prebid      *ExtRequestPrebid
	prebidDirty bool
}

func (re *RequestExt) unmarshal(extJson json.RawMessage) error {
	if len(re.ext) != 0 || re.Dirty() {
		return nil
	}
	re.ext = make(map[string]json.RawMessage)
	if len(extJson) == 0 {
		return nil
	}

	if err := json.Unmarshal(extJson, &re.ext); err != nil {
		return err
	}

	prebidJson, hasPrebid := re.ext["prebid"]
	if hasPrebid {
		re.prebid = &ExtRequestPrebid{}
		if err := json.Unmarshal(prebidJson, re.prebid); err != nil {
			return err
		}
	}

	return nil
}

func (re *RequestExt) marshal() (json.RawMessage, error) {
	if re.prebidDirty {
		prebidJson, err := json.Marshal(re.prebid)
		if err != nil {
			return nil, err
		}
		if len(prebidJson) > 2 {
			re.ext["prebid"] = json.RawMessage(prebidJson)
		} else {
			delete(re.ext, "prebid")
		}
		re.prebidDirty = false
	}

	re.extDirty = false
	if len(re.ext) == 0 {
		return nil, nil
	}
	return json.Marshal(re.ext)
}

func (re *RequestExt) Dirty() bool {
	return re.extDirty || re.prebidDirty
}

func (re *RequestExt) GetExt() map[string]json.RawMessage {
	ext := make(map[string]json.RawMessage)
	for k, v := range re.ext {
		ext[k] = v
	}
	return ext
}

func (re *RequestExt) SetExt(ext map[string]json.RawMessage) {
	re.ext = ext
	re.extDirty = true
}

func (re *RequestExt) GetPrebid() *ExtRequestPrebid {
	if re == nil || re.prebid == nil {
		return nil
	}
	prebid := *re.prebid
	return &prebid
}

func (re *RequestExt) SetPrebid(prebid *ExtRequestPrebid) {
	re.prebid = prebid
	re.prebidDirty = true
}

// ---------------------------------------------------------------
// ImpWrapper provides an interface for imp and imp.ext
// ---------------------------------------------------------------

type ImpWrapper struct {
	*openrtb2.Imp
	impExt *ImpExt
}

func (w *ImpWrapper) GetImpExt() (*ImpExt, error) {
	if w.impExt != nil {
		return w.impExt, nil
	}
	w.impExt = &ImpExt{}
	if w.Imp == nil || w.Ext == nil {
		return w.impExt, w.impExt.unmarshal(json.RawMessage{})
	}
	return w.impExt, w.impExt.unmarshal(w.Ext)
}

func (w *ImpWrapper) RebuildImp() error {
	if w.Imp == nil {
		return errors.New("ImpWrapper RebuildImp called on a nil Imp")
	}

	if w.impExt == nil || !w.impExt.Dirty() {
		return nil
	}

	impJson, err := w.impExt.marshal()
	if err != nil {
		return err
	}
	w.Ext = impJson
	return nil
}

type ImpExt struct {
	ext         map[string]json.RawMessage
	extDirty    bool
	prebid      *ExtImpPrebid
	prebidDirty bool
}

func (e *ImpExt) unmarshal(extJson json.RawMessage) error {
	if len(e.ext) != 0 || e.Dirty() {
		return nil
	}
	e.ext = make(map[string]json.RawMessage)
	if len(extJson) == 0 {
		return nil
	}

	if err := json.Unmarshal(extJson, &e.ext); err != nil {
		return err
	}

	prebidJson, hasPrebid := e.ext["prebid"]
	if hasPrebid {
		e.prebid = &ExtImpPrebid{}
		if err := json.Unmarshal(prebidJson, e.prebid); err != nil {
			return err
		}
	}

	return nil
}

func (e *ImpExt) marshal() (json.RawMessage, error) {
	if e.prebidDirty {
		prebidJson, err := json.Marshal(e.prebid)
		if err != nil {
			return nil, err
		}
		if len(prebidJson) > 2 {
			e.ext["prebid"] = json.RawMessage(prebidJson)
		} else {
			delete(e.ext, "prebid")
		}
		e.prebidDirty = false
	}

	e.extDirty = false
	if len(e.ext) == 0 {
		return nil, nil
	}
	return json.Marshal(e.ext)
}

func (e *ImpExt) Dirty() bool {
	return e.extDirty || e.prebidDirty
}

func (e *ImpExt) GetExt() map[string]json.RawMessage {
	ext := make(map[string]json.RawMessage)
	for k, v := range e.ext {
		ext[k] = v
	}
	return ext
}

func (e *ImpExt) SetExt(ext map[string]json.RawMessage) {
	e.ext = ext
	e.extDirty = true
}

func (e *ImpExt) GetPrebid() *ExtImpPrebid {
	if e == nil || e.prebid == nil {
		return nil
	}
	prebid := *e.prebid
	return &prebid
}

func (e *ImpExt) GetOrCreatePrebid() *ExtImpPrebid {
	if e.prebid == nil {
		e.prebid = &ExtImpPrebid{}
	}
	return e.GetPrebid()
}

func (e *ImpExt) SetPrebid(prebid *ExtImpPrebid) {
	e.prebid = prebid
	e.prebidDirty = true
}
