package memory

import (
	"github.com/spade-lang/velocity/objects"
)

// BasicCollector is a single-pass mark-and-sweep collector over a
// BasicManager's intrusive list. It never signals: tracing terminates
// because each mark bit is set at most once, and sweep is O(live + dead).
type BasicCollector struct {
	manager *BasicManager
	gray    []objects.Obj
}

func NewBasicCollector(manager *BasicManager) *BasicCollector {
	return &BasicCollector{manager: manager}
}

// GC runs the three phases. The caller must guarantee that no mutator is
// allocating or mutating member slots while it runs.
func (c *BasicCollector) GC() {
	c.markRoots()
	c.traceReferences()
	c.sweep()
}

func (c *BasicCollector) markRoots() {
	if c.manager.roots == nil {
		return
	}
	c.manager.roots.EnumerateRoots(c.mark)
}

// mark sets the object's mark bit and queues it for tracing. An object's
// type and module are always marked alongside it.
func (c *BasicCollector) mark(obj objects.Obj) {
	if obj == nil {
		return
	}
	info := obj.Info()
	if info.Marked {
		return
	}
	info.Marked = true
	c.gray = append(c.gray, obj)
	if module := obj.Module(); module != nil {
		c.mark(module)
	}
	if typ := obj.Type(); typ != nil {
		c.mark(typ)
	}
}

// traceReferences drains the gray worklist, dispatching on the variant tag.
// Appending inside the loop is the worklist growing; the slice is bounded
// by the number of live objects.
func (c *BasicCollector) traceReferences() {
	for i := 0; i < len(c.gray); i++ {
		switch material := c.gray[i].(type) {
		case *objects.ObjArray:
			material.Foreach(c.mark)
		case *objects.ObjMethod:
			c.traceMethod(material)
		case *objects.Type:
			for _, param := range material.TypeParams() {
				c.mark(param)
			}
			for _, super := range material.Supers() {
				c.mark(super)
			}
			c.markSlots(material)
		case *objects.TypeParam:
			if referenced := material.Referenced(); referenced != nil {
				c.mark(referenced)
			}
		case *objects.ObjModule:
			for _, constant := range material.Pool() {
				c.mark(constant)
			}
			c.markSlots(material)
		default:
			c.markSlots(material)
		}
	}
}

func (c *BasicCollector) traceMethod(method *objects.ObjMethod) {
	template := method.Template()
	if template != nil {
		for _, arg := range template.Args() {
			c.mark(arg.Value)
		}
		for _, local := range template.Locals().Locals {
			c.mark(local.Value)
		}
		for _, entry := range template.Exceptions().Entries {
			if entry.Caught != nil {
				c.mark(entry.Caught)
			}
		}
		for _, match := range template.Matches() {
			for _, kase := range match.Cases {
				c.mark(kase.Key)
			}
		}
		for _, lambda := range template.Lambdas() {
			c.mark(lambda)
		}
	}
	for _, param := range method.TypeParams() {
		c.mark(param)
	}
}

func (c *BasicCollector) markSlots(obj objects.Obj) {
	for _, slot := range obj.MemberSlots() {
		c.mark(slot.Value)
	}
}

// sweep walks the intrusive list once. Survivors get their mark cleared and
// their life counter bumped; everything else is torn down and unlinked.
func (c *BasicCollector) sweep() {
	current := c.manager.first()
	for current != nil {
		next := current.Next
		if current.Marked {
			current.Marked = false
			current.Life++
		} else {
			objects.Hfree(current.Owner)
		}
		current = next
	}
}
