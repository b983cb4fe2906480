/*
Package blockidx contains a small embedded storage engine: a single-file,
block-based sorted index which behaves like an on-disk ordered set or
multimap, plus an append-only log.

A SlotStore allocates fixed-size slots in a file and reuses removed slots
through an intrusive free list. A BlockIndex keeps its elements in sorted leaf
blocks stored in those slots, and a single index block of leaf minimums in
the file header. A KeyedIndex stores key/value pairs in a BlockIndex with
unique or multi key semantics. An AppendLog stores records in sequence.

Instances are not safe for concurrent use and a file must only be opened by a
single instance at a time. Multiple indices are independent files; callers
keeping several of them consistent must sequence their calls themselves.

Data Structure Documentation

Slot File

    File layout:
    +---------------+--------------------------+--------+--------+-------+
    | header (info) | free-list head (8 bytes) | slot 0 | slot 1 |  ...  |
    +---------------+--------------------------+--------+--------+-------+

Each slot holds either a live record or, once removed, the offset of the next
removed slot. A free-list head at or past the end of the file points at the
growth position. Integers are little-endian. There is no magic number or
version: changing a record's shape invalidates existing files.

Block Index

The header holds the index block, each leaf block occupies one slot.

    Block layout:
    +------------------+-----------+-------+-----------------+
    | count (4 bytes)  | element 1 |  ...  | element (cap)   |
    +------------------+-----------+-------+-----------------+

    Index element:
    +----------------------+-----------------------+
    | leaf minimum element | leaf offset (8 bytes) |
    +----------------------+-----------------------+

Append Log

    Log header:
    +------------------------------+-------------------------+
    | last record offset (8 bytes) |  record count (8 bytes) |
    +------------------------------+-------------------------+

Snapshot

A snapshot is a portable export of sorted elements.

    Snapshot layout:
    +---------+---------+---------+-------------+-----------------+
    | block 1 |   ...   | block n | block index | snapshot footer |
    +---------+---------+---------+-------------+-----------------+

    Block:
    +---------+---------------------------+------------------+---------------------------+
    | payload | plain length (4 bytes)    | codec (1 byte)   | blake3 checksum (4 bytes) |
    +---------+---------------------------+------------------+---------------------------+

    Block index:
    +----------------------+--------------------+-------+
    | last element block 1 | offset 1 (8 bytes) |  ...  |
    +----------------------+--------------------+-------+

    Snapshot footer:
    +------------------------+-------------------------+------------------+
    | index offset (8 bytes) | element count (8 bytes) |  magic (8 bytes) |
    +------------------------+-------------------------+------------------+
*/
package blockidx
