/*
Package fdt reads Flattened Devicetree blobs (DTB files) in place.

A blob is validated once by Validate or New, and every query afterwards
walks the original bytes: nothing is deserialised up front, and a decoded
property value is produced only when asked for. The Image is immutable,
so any number of goroutines may query it at once without locking.

We implement:

1. Header validation (magic, sizes, version range, block layout).

2. Tree navigation by offset: path lookup, path and name reconstruction,
parent/child/sibling steps, compatible and phandle searches, aliases.

3. Property decoding into tagged Values: strings, cells, booleans, bytes.

4. An error taxonomy that keeps libfdt's numeric codes.

Loading files, persistence and export formats live in the dtbfile,
catalog and snapshot packages.

# Technical Details

**Offsets.**
A node offset is an int counted from the start of the structure block,
the same convention libfdt uses. It is validated each time it's used:
it has to be 4-byte aligned and point at a begin-node token.

## Binary layout

All integers are big-endian.

**Header** (40 bytes for version 17, 36 for version 16):
1. magic = 0xd00dfeed.
2. totalsize.
3. off_dt_struct, off_dt_strings, off_mem_rsvmap.
4. version, last_comp_version.
5. boot_cpuid_phys.
6. size_dt_strings.
7. size_dt_struct (version 17 only).

**Memory reservation block**: pairs of address:64 size:64, terminated by
an entry with a zero size.

**Structure block**: a sequence of 4-byte aligned tokens:
1. BEGIN_NODE (1), then the NUL-terminated node name, padded to 4.
2. END_NODE (2).
3. PROP (3), then len:32 nameoff:32 and len bytes of value, padded to 4.
4. NOP (4).
5. END (9), once, at the end.

Properties of a node always come before its children.

**Strings block**: NUL-terminated property names, referenced by nameoff.
*/
package fdt
